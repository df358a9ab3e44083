package server_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/telnet2/wamux/citest/testutil"
)

var (
	testServer *testutil.TestServer
	client     *testutil.TestClient
	ctx        context.Context
)

func TestServer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Server Suite")
}

var _ = BeforeSuite(func() {
	var err error
	testServer, err = testutil.StartTestServer(testutil.WithEnvFile("../../.env"), testutil.WithManifest("echo.md", `---
name: echo
description: Repeat the arguments
category: fun
aliases: [say]
---
{{.PushName}} said: {{.Input}}
`))
	Expect(err).NotTo(HaveOccurred(), "Failed to start test server")

	client = testServer.Client()
	ctx = context.Background()
})

var _ = AfterSuite(func() {
	if testServer != nil {
		testServer.Stop()
	}
})

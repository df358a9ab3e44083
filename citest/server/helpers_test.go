package server_test

import (
	"fmt"
	"sync/atomic"
	"time"

	. "github.com/onsi/gomega"

	"github.com/telnet2/wamux/internal/transport/transporttest"
	"github.com/telnet2/wamux/pkg/types"
)

const (
	ownerNumber = "221700000000"
	guestNumber = "221799999999"
)

var msgSeq atomic.Int64

func jid(number string) string {
	return number + "@s.whatsapp.net"
}

// directText builds a private-chat text message from number.
func directText(number, text string) *types.Message {
	return &types.Message{
		ID:        fmt.Sprintf("CITEST%06d", msgSeq.Add(1)),
		Chat:      jid(number),
		Sender:    jid(number),
		PushName:  "Tester",
		Timestamp: time.Now(),
		Content:   types.Content{Kind: types.KindConversation, Text: text},
	}
}

// startConnected starts a session through the API and returns its live client.
func startConnected(name string) *transporttest.Client {
	_, err := client.StartSession(ctx, types.SessionDescriptor{Name: name, OwnerNumber: ownerNumber})
	Expect(err).NotTo(HaveOccurred())
	Eventually(func() (types.SessionState, error) {
		return client.SessionState(ctx, name)
	}).WithTimeout(5 * time.Second).Should(Equal(types.StateConnected))

	c := testServer.Factory.Latest(name)
	Expect(c).NotTo(BeNil())
	return c
}

func removeSession(name string) {
	_, _ = client.Delete(ctx, "/api/session/"+name)
}

// lastTextEventually waits until the client has sent a text containing substr.
func lastTextEventually(c *transporttest.Client, substr string) {
	Eventually(func() []string { return c.Texts() }).
		WithTimeout(5 * time.Second).
		Should(ContainElement(ContainSubstring(substr)))
}

package server_test

import (
	"encoding/json"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/telnet2/wamux/citest/testutil"
	"github.com/telnet2/wamux/internal/transport/transporttest"
	"github.com/telnet2/wamux/pkg/types"
)

var _ = Describe("Chat commands", func() {
	var c *transporttest.Client

	BeforeEach(func() {
		c = startConnected("chat")
	})

	AfterEach(func() {
		removeSession("chat")
	})

	It("answers ping from anyone in public mode", func() {
		c.Deliver(directText(guestNumber, "!ping"))
		lastTextEventually(c, "Pong")
	})

	It("runs manifest commands and their aliases", func() {
		c.Deliver(directText(guestNumber, "!say hello world"))
		lastTextEventually(c, "Tester said: hello world")
	})

	It("suggests a close command name", func() {
		c.Deliver(directText(guestNumber, "!pong"))
		lastTextEventually(c, "Did you mean *!ping*")
		Expect(c.Reactions()).To(ContainElement("❌"))
	})

	It("persists private mode and denies guests", func() {
		c.Deliver(directText(ownerNumber, "!mode private"))
		lastTextEventually(c, "Mode updated")

		Eventually(func() string {
			var cfg types.Config
			if err := client.Decode(ctx, http.MethodGet, "/api/config", nil, &cfg); err != nil {
				return ""
			}
			for _, d := range cfg.Sessions {
				if d.Name == "chat" {
					return d.Mode
				}
			}
			return ""
		}).WithTimeout(5 * time.Second).Should(Equal(types.ModePrivate))

		c.Deliver(directText(guestNumber, "!menu"))
		lastTextEventually(c, "private mode")
	})

	It("picks up new manifests without a restart", func() {
		Expect(testServer.WriteManifest("greet.md", "---\nname: greet\n---\nHi {{arg .Args 0}}!\n")).To(Succeed())

		Eventually(func() bool {
			_, ok := testServer.Registry.Get("greet")
			return ok
		}).WithTimeout(5 * time.Second).Should(BeTrue())

		c.Deliver(directText(guestNumber, "!greet Awa"))
		lastTextEventually(c, "Hi Awa!")
	})

	It("streams command.executed events", func() {
		sse := testServer.SSEClient()
		Expect(sse.Connect(ctx, "/api/events?type=command.executed&session=chat")).To(Succeed())
		defer sse.Close()
		_, err := sse.WaitForEvent("server.connected", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		c.Deliver(directText(guestNumber, "!ping"))

		evt, err := sse.WaitFor(func(e testutil.SSEEvent) bool { return e.Type == "command.executed" }, 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		be, err := evt.Decode()
		Expect(err).NotTo(HaveOccurred())

		var data struct {
			Session string `json:"session"`
			Command string `json:"command"`
		}
		Expect(json.Unmarshal(be.Data, &data)).To(Succeed())
		Expect(data.Session).To(Equal("chat"))
		Expect(data.Command).To(Equal("ping"))
	})

	It("counts messages in the session stats", func() {
		c.Deliver(directText(guestNumber, "hello there"))
		Eventually(func() int64 {
			var st struct {
				TotalMessages int64 `json:"totalMessages"`
			}
			_ = client.Decode(ctx, http.MethodGet, "/api/stats", nil, &st)
			return st.TotalMessages
		}).WithTimeout(5 * time.Second).Should(BeNumerically(">=", 1))
	})
})

package server_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/telnet2/wamux/pkg/types"
)

var _ = Describe("HTTP API", func() {
	Describe("GET /api/health", func() {
		It("reports ok", func() {
			var health struct {
				Status  string `json:"status"`
				Version string `json:"version"`
			}
			Expect(client.Decode(ctx, http.MethodGet, "/api/health", nil, &health)).To(Succeed())
			Expect(health.Status).To(Equal("ok"))
			Expect(health.Version).To(Equal("citest"))
		})
	})

	Describe("sessions", func() {
		AfterEach(func() {
			removeSession("api-a")
			removeSession("api-b")
		})

		It("starts a session and lists it as active", func() {
			startConnected("api-a")

			active, err := client.ActiveSessions(ctx)
			Expect(err).NotTo(HaveOccurred())
			names := []string{}
			for _, a := range active {
				names = append(names, a.Name)
			}
			Expect(names).To(ContainElement("api-a"))
		})

		It("rejects an invalid descriptor", func() {
			resp, err := client.Post(ctx, "/api/sessions/start", types.SessionDescriptor{Name: "api-a", OwnerNumber: "abc"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(resp.String()).To(ContainSubstring("INVALID_REQUEST"))
		})

		It("reconnects after the connection drops", func() {
			c := startConnected("api-a")
			c.Drop("network reset")

			Eventually(func() int { return len(testServer.Factory.Opened("api-a")) }).
				WithTimeout(5 * time.Second).Should(BeNumerically(">=", 2))
			Eventually(func() (types.SessionState, error) {
				return client.SessionState(ctx, "api-a")
			}).WithTimeout(5 * time.Second).Should(Equal(types.StateConnected))
		})

		It("restarts a session", func() {
			startConnected("api-a")
			resp, err := client.Post(ctx, "/api/session/api-a/restart", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Eventually(func() int { return len(testServer.Factory.Opened("api-a")) }).
				WithTimeout(5 * time.Second).Should(BeNumerically(">=", 2))
		})

		It("deletes a session and its config", func() {
			startConnected("api-b")

			resp, err := client.Delete(ctx, "/api/session/api-b")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, err = client.Get(ctx, "/api/session/api-b/status")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			var cfg types.Config
			Expect(client.Decode(ctx, http.MethodGet, "/api/config", nil, &cfg)).To(Succeed())
			for _, d := range cfg.Sessions {
				Expect(d.Name).NotTo(Equal("api-b"))
			}
		})
	})

	Describe("POST /api/config", func() {
		AfterEach(func() {
			removeSession("cfg-a")
			removeSession("cfg-b")
		})

		It("starts added sessions and stops removed ones", func() {
			var out struct {
				Started []string `json:"started"`
				Stopped []string `json:"stopped"`
			}
			cfg := types.Config{Sessions: []types.SessionDescriptor{
				{Name: "cfg-a", OwnerNumber: ownerNumber},
				{Name: "cfg-b", OwnerNumber: ownerNumber},
			}}
			Expect(client.Decode(ctx, http.MethodPost, "/api/config", cfg, &out)).To(Succeed())
			Expect(out.Started).To(ConsistOf("cfg-a", "cfg-b"))

			cfg.Sessions = cfg.Sessions[1:]
			Expect(client.Decode(ctx, http.MethodPost, "/api/config", cfg, &out)).To(Succeed())
			Expect(out.Stopped).To(ConsistOf("cfg-a"))
			Expect(out.Started).To(BeEmpty())
		})
	})

	Describe("GET /api/stats", func() {
		It("returns aggregate counters", func() {
			var stats struct {
				Sessions   int `json:"sessions"`
				Configured int `json:"configured"`
			}
			Expect(client.Decode(ctx, http.MethodGet, "/api/stats", nil, &stats)).To(Succeed())
			Expect(stats.Sessions).To(BeNumerically(">=", 0))
		})
	})

	Describe("GET /api/backup/status", func() {
		It("reports an unconfigured backup", func() {
			var st struct {
				Configured bool `json:"configured"`
			}
			Expect(client.Decode(ctx, http.MethodGet, "/api/backup/status", nil, &st)).To(Succeed())
			Expect(st.Configured).To(BeFalse())
		})
	})
})

//go:build integration

package integration

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/presenced/internal/domain"
	"github.com/eliteGoblin/presenced/internal/infra"
	"github.com/eliteGoblin/presenced/internal/usecase"
	"github.com/eliteGoblin/presenced/test/fixtures"
)

const clientID = "1071527161049124914"

// manualClock only moves when told to, so cooldowns are deterministic.
type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var _ = Describe("Presence Engine", func() {
	var (
		tmpDir    string
		statePath string
		stamp     time.Time
		bridge    *fixtures.FakeBridge
		clock     *manualClock
		state     *infra.StateFile
		engine    *usecase.Engine
	)

	visible := func() domain.DisplayPreferences {
		p := domain.DefaultPreferences()
		p.ShowStatus = true
		p.ShowDetails = true
		return p
	}

	start := func(id string, prefs domain.DisplayPreferences) {
		client := infra.NewWSClient(infra.WSClientConfig{
			URL:              bridge.URL(),
			HandshakeTimeout: time.Second,
			RateLimit:        100,
			RateWindow:       time.Second,
		}, zap.NewNop())
		engine = usecase.NewEngine(usecase.EngineConfig{
			Connection: usecase.ConnectionConfig{
				ClientID:      id,
				LargeImageKey: "icon",
			},
			Preferences: prefs,
			IdleIndex:   usecase.DefaultIdleExpressionIndex,
		}, client, state, clock, zap.NewNop())
	}

	// writeState replaces the host state file and moves its mtime forward,
	// so a same-size rewrite is still noticed.
	writeState := func(doc string) {
		Expect(os.WriteFile(statePath, []byte(doc), 0644)).To(Succeed())
		stamp = stamp.Add(time.Second)
		Expect(os.Chtimes(statePath, stamp, stamp)).To(Succeed())
	}

	tick := func() {
		Expect(state.Refresh()).To(Succeed())
		engine.Tick()
	}

	received := func() int {
		engine.Pump()
		return len(bridge.Activities())
	}

	last := func() fixtures.BridgeActivity {
		acts := bridge.Activities()
		Expect(acts).NotTo(BeEmpty())
		return acts[len(acts)-1]
	}

	// connect runs the first tick and waits for the default activity.
	connect := func() {
		tick()
		Expect(engine.IsConnected()).To(BeTrue())
		Eventually(received).Should(Equal(1))
		Expect(last().Type).To(Equal("none"))
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "presenced-integration-*")
		Expect(err).NotTo(HaveOccurred())

		statePath = filepath.Join(tmpDir, "state.yaml")
		stamp = time.Now().Add(-time.Hour)
		bridge = fixtures.NewFakeBridge()
		clock = &manualClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
		state = infra.NewStateFile(statePath, zap.NewNop())
		engine = nil
	})

	AfterEach(func() {
		if engine != nil {
			engine.Close()
		}
		bridge.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("Change suppression", func() {
		Context("when the host state does not change", func() {
			It("should publish the state only once", func() {
				start(clientID, visible())
				writeState("context: main_menu\n")
				connect()

				tick()
				Eventually(received).Should(Equal(2))
				Expect(last().Details).To(Equal("In Main Menu"))

				Consistently(func() int {
					tick()
					return len(bridge.Activities())
				}, 300*time.Millisecond, 20*time.Millisecond).Should(Equal(2))
			})
		})

		Context("when the disconnected page is evaluated twice", func() {
			It("should publish it once", func() {
				start(clientID, visible())
				writeState("context: disconnected\n")
				connect()

				tick()
				tick()
				Eventually(received).Should(Equal(2))
				Expect(last().Type).To(Equal("disconnected"))
				Expect(last().Details).To(Equal("DISCONNECTED!"))

				Consistently(received, 200*time.Millisecond, 20*time.Millisecond).Should(Equal(2))
			})
		})
	})

	Describe("Preference changes", func() {
		Context("when a single preference is toggled", func() {
			It("should force exactly one publish with the same text", func() {
				start(clientID, visible())
				writeState("context: settings\n")
				connect()
				tick()
				Eventually(received).Should(Equal(2))

				engine.SetShowAge(false)
				tick()
				tick()
				Eventually(received).Should(Equal(3))
				Expect(last().Details).To(Equal("Editing Settings"))

				Consistently(received, 200*time.Millisecond, 20*time.Millisecond).Should(Equal(3))
			})
		})

		Context("when status is hidden", func() {
			It("should publish one blank activity", func() {
				start(clientID, visible())
				writeState("context: main_menu\n")
				connect()
				tick()
				Eventually(received).Should(Equal(2))

				engine.SetShowStatus(false)
				tick()
				tick()
				Eventually(received).Should(Equal(3))
				Expect(last().Type).To(Equal("none"))
				Expect(last().Details).To(BeEmpty())
				Expect(last().State).To(BeEmpty())
			})
		})

		Context("when status is hidden from the start", func() {
			It("should send only the default activity", func() {
				start(clientID, domain.DefaultPreferences())
				writeState("context: main_menu\n")
				connect()

				Consistently(func() int {
					tick()
					return len(bridge.Activities())
				}, 200*time.Millisecond, 20*time.Millisecond).Should(Equal(1))
			})
		})

		Context("when the game is hidden", func() {
			It("should disconnect and stay quiet", func() {
				start(clientID, visible())
				writeState("context: main_menu\n")
				connect()

				engine.SetShowGame(false)
				Expect(engine.IsConnected()).To(BeFalse())

				clock.Advance(time.Minute)
				tick()
				Expect(bridge.Handshakes()).To(HaveLen(1))
			})
		})
	})

	Describe("Living player text", func() {
		Context("when first names are hidden", func() {
			It("should show the family name", func() {
				prefs := visible()
				prefs.ShowFirstName = false
				start(clientID, prefs)
				writeState("context: living\nplayer:\n  name: Alice Smith\n  age: 30\n")
				connect()

				tick()
				Eventually(received).Should(Equal(2))
				Expect(last().Type).To(Equal("living_life"))
				Expect(last().Details).To(Equal("Living Life, [F] Age 30"))
				Expect(last().State).To(Equal("In The Smith Family"))
			})
		})

		Context("when the name is blank", func() {
			It("should use the placeholder", func() {
				start(clientID, visible())
				writeState("context: living\nplayer:\n  name: \"   \"\n  age: 4\n  male: true\n")
				connect()

				tick()
				Eventually(received).Should(Equal(2))
				Expect(last().State).To(Equal("NAMELESS"))
			})
		})

		Context("when the player is infertile", func() {
			It("should mark the details and strip the name", func() {
				start(clientID, visible())
				writeState("context: living\nplayer:\n  name: Bob +INFERTILE+\n  age: 51\n  male: true\n")
				connect()

				tick()
				Eventually(received).Should(Equal(2))
				Expect(last().Details).To(ContainSubstring("[INF]"))
				Expect(last().State).To(Equal("As Bob"))
			})
		})

		Context("when the player ages", func() {
			It("should republish the new age", func() {
				start(clientID, visible())
				writeState("context: living\nplayer:\n  name: Eve\n  age: 20\n")
				connect()
				tick()
				Eventually(received).Should(Equal(2))

				writeState("context: living\nplayer:\n  name: Eve\n  age: 21\n")
				tick()
				Eventually(received).Should(Equal(3))
				Expect(last().Details).To(Equal("Living Life, [F] Age 21"))
			})
		})
	})

	Describe("Reconnect", func() {
		Context("when the bridge drops the connection", func() {
			It("should wait out the cooldown before reconnecting", func() {
				start(clientID, visible())
				writeState("context: main_menu\n")
				connect()
				tick()
				Eventually(received).Should(Equal(2))

				bridge.DropConnections()
				Eventually(func() bool {
					engine.Pump()
					return engine.IsConnected()
				}).Should(BeFalse())

				for i := 0; i < 20; i++ {
					tick()
				}
				clock.Advance(usecase.DefaultReconnectCooldown)
				tick()
				Expect(bridge.Handshakes()).To(HaveLen(1), "cooldown must be exceeded, not just reached")

				clock.Advance(time.Second)
				tick()
				Expect(engine.IsConnected()).To(BeTrue())
				Expect(bridge.Handshakes()).To(HaveLen(2))

				tick()
				Eventually(received).Should(Equal(4))
				Expect(last().Details).To(Equal("In Main Menu"))
			})
		})
	})

	Describe("Suspect client id", func() {
		Context("when the id has trailing garbage", func() {
			It("should try the numeric prefix once and clear on success", func() {
				start("12abc", visible())
				writeState("context: main_menu\n")

				tick()
				Expect(bridge.Handshakes()).To(Equal([]string{"12"}))
				Expect(engine.CredentialSuspect()).To(BeTrue())

				Eventually(func() bool {
					engine.Pump()
					return engine.CredentialSuspect()
				}).Should(BeFalse())
			})

			It("should never retry once the bridge rejects it", func() {
				bridge.RejectHandshakes("invalid_credential")
				start("12abc", visible())
				writeState("context: main_menu\n")

				tick()
				Expect(engine.IsConnected()).To(BeFalse())
				Expect(engine.CredentialSuspect()).To(BeTrue())

				bridge.RejectHandshakes("")
				for i := 0; i < 5; i++ {
					clock.Advance(time.Minute)
					tick()
				}
				Expect(bridge.Handshakes()).To(HaveLen(1))
			})
		})
	})
})

package integration

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/stacklok/pwa-update-manager/internal/api/v1"
	"github.com/stacklok/pwa-update-manager/internal/config"
	"github.com/stacklok/pwa-update-manager/internal/coordinator"
	"github.com/stacklok/pwa-update-manager/test-integration/api/helpers"
)

const (
	targetRuntime = "153"
	appID         = "https://pwa.example/app/"
)

func decodeActivation(resp *http.Response) v1.ActivationResponse {
	defer func() {
		_ = resp.Body.Close()
	}()
	Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
	var body v1.ActivationResponse
	Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
	return body
}

func expectStatus(resp *http.Response, err error, code int) {
	Expect(err).NotTo(HaveOccurred())
	defer func() {
		_ = resp.Body.Close()
	}()
	Expect(resp.StatusCode).To(Equal(code))
}

var _ = Describe("Update Flow", func() {
	var (
		tempDir  string
		snapshot *helpers.SnapshotServer
		server   *helpers.ServerTestHelper
	)

	startServer := func(opts *helpers.ConfigOptions) {
		configPath := helpers.WriteConfigYAML(tempDir, snapshot.URL(), targetRuntime, opts)
		server = helpers.NewServerTestHelper(ctx, configPath)
		Expect(server.StartServer()).To(Succeed())
		server.WaitForServerReady(10 * time.Second)
	}

	stateOf := func(id string) func() coordinator.State {
		return func() coordinator.State {
			status, err := server.AppStatus(id)
			if err != nil {
				return ""
			}
			return status.State
		}
	}

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		snapshot = helpers.NewSnapshotServer()
	})

	AfterEach(func() {
		if server != nil {
			Expect(server.StopServer()).To(Succeed())
			server = nil
		}
		snapshot.Close()
	})

	Context("with file storage", func() {
		BeforeEach(func() {
			startServer(nil)
		})

		It("ignores packages it does not manage", func() {
			app := helpers.InstalledApp(appID, "100")
			app.PackageName = "com.example.native"

			resp, err := server.Activate(app)
			Expect(err).NotTo(HaveOccurred())
			body := decodeActivation(resp)
			Expect(body.Started).To(BeFalse())
			Expect(body.Reason).To(Equal(coordinator.ReasonUnbound))

			resp, err = server.GetApp(appID)
			expectStatus(resp, err, http.StatusNotFound)
			Expect(snapshot.Requests()).To(BeEmpty())
		})

		It("republishes an app running a stale runtime until delivery succeeds", func() {
			app := helpers.InstalledApp(appID, "100")
			snapshot.SetSnapshot(helpers.FetchedFor(app))

			By("activating the app")
			resp, err := server.Activate(app)
			Expect(err).NotTo(HaveOccurred())
			body := decodeActivation(resp)
			Expect(body.Started).To(BeTrue())
			Expect(body.Reason).To(Equal(coordinator.ReasonStaleRuntime))

			Eventually(stateOf(appID), 5*time.Second, 50*time.Millisecond).Should(Equal(coordinator.StateScheduled))

			status, err := server.AppStatus(appID)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Record.UpdateScheduled).To(BeTrue())
			Expect(status.Record.LastRequestSucceeded).To(BeFalse())
			Expect(status.Record.LastRequestedRuntimeVersion).To(Equal(targetRuntime))
			Expect(status.Record.PendingRequestPath).NotTo(BeEmpty())
			Expect(status.Record.PendingRequestPath).To(BeAnExistingFile())
			artifact := status.Record.PendingRequestPath

			By("activating while the delivery is outstanding")
			resp, err = server.Activate(app)
			Expect(err).NotTo(HaveOccurred())
			body = decodeActivation(resp)
			Expect(body.Started).To(BeFalse())
			Expect(body.Reason).To(Equal(coordinator.ReasonDeliveryPending))
			Expect(artifact).To(BeAnExistingFile())

			By("reporting a successful delivery")
			resp, err = server.ReportDelivery(appID, "success", false)
			expectStatus(resp, err, http.StatusNoContent)

			By("reporting the same delivery twice")
			resp, err = server.ReportDelivery(appID, "failure", false)
			expectStatus(resp, err, http.StatusConflict)

			status, err = server.AppStatus(appID)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.State).To(Equal(coordinator.StateIdle))
			Expect(status.Record.UpdateScheduled).To(BeFalse())
			Expect(status.Record.LastRequestSucceeded).To(BeTrue())
			Expect(status.Record.PendingRequestPath).To(BeEmpty())
			_, err = os.Stat(artifact)
			Expect(os.IsNotExist(err)).To(BeTrue())

			By("activating again right away")
			resp, err = server.Activate(app)
			Expect(err).NotTo(HaveOccurred())
			body = decodeActivation(resp)
			Expect(body.Started).To(BeFalse())
			Expect(body.Reason).To(Equal(coordinator.ReasonCheckedRecently))
		})

		It("does not check a newly seen app before the interval elapses", func() {
			app := helpers.InstalledApp(appID, targetRuntime)
			snapshot.SetSnapshot(helpers.FetchedFor(app))

			resp, err := server.Activate(app)
			Expect(err).NotTo(HaveOccurred())
			body := decodeActivation(resp)
			Expect(body.Started).To(BeFalse())
			Expect(body.Reason).To(Equal(coordinator.ReasonCheckedRecently))

			status, err := server.AppStatus(appID)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.State).To(Equal(coordinator.StateIdle))
			Expect(snapshot.Requests()).To(BeEmpty())
		})

		It("clears a force update when the manifest is unchanged", func() {
			app := helpers.InstalledApp(appID, targetRuntime)
			snapshot.SetSnapshot(helpers.FetchedFor(app))

			resp, err := server.ForceUpdate(appID, app.PackageName)
			expectStatus(resp, err, http.StatusNoContent)

			resp, err = server.Activate(app)
			Expect(err).NotTo(HaveOccurred())
			body := decodeActivation(resp)
			Expect(body.Started).To(BeTrue())
			Expect(body.Reason).To(Equal(coordinator.ReasonForceUpdate))

			Eventually(func() bool {
				status, err := server.AppStatus(appID)
				return err == nil && status.State == coordinator.StateIdle && !status.Record.ForceUpdate
			}, 5*time.Second, 50*time.Millisecond).Should(BeTrue())

			status, err := server.AppStatus(appID)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Record.UpdateScheduled).To(BeFalse())
			Expect(status.Record.LastRequestSucceeded).To(BeTrue())
			Expect(snapshot.Requests()).To(ConsistOf(appID))
		})

		Context("when the manifest changes the app name", func() {
			BeforeEach(func() {
				app := helpers.InstalledApp(appID, targetRuntime)
				fetched := helpers.FetchedFor(app)
				fetched.Snapshot.Name = "Renamed App"
				snapshot.SetSnapshot(fetched)

				resp, err := server.ForceUpdate(appID, app.PackageName)
				expectStatus(resp, err, http.StatusNoContent)

				resp, err = server.Activate(app)
				Expect(err).NotTo(HaveOccurred())
				Expect(decodeActivation(resp).Started).To(BeTrue())

				Eventually(stateOf(appID), 5*time.Second, 50*time.Millisecond).
					Should(Equal(coordinator.StateAwaitingApproval))
			})

			It("asks the user and schedules the update once approved", func() {
				prompts, err := server.Prompts()
				Expect(err).NotTo(HaveOccurred())
				Expect(prompts.Prompts).To(HaveLen(1))
				Expect(prompts.Prompts[0].AppID).To(Equal(appID))
				Expect(prompts.Prompts[0].Prompt.NameChanging).To(BeTrue())
				Expect(prompts.Prompts[0].Prompt.OldName).To(Equal("Integration App"))
				Expect(prompts.Prompts[0].Prompt.NewName).To(Equal("Renamed App"))

				resp, err := server.Decide(appID, "positive")
				expectStatus(resp, err, http.StatusNoContent)

				Eventually(stateOf(appID), 5*time.Second, 50*time.Millisecond).Should(Equal(coordinator.StateScheduled))

				status, err := server.AppStatus(appID)
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Record.ApprovedIdentityHash).NotTo(BeEmpty())
				Expect(status.Record.UpdateScheduled).To(BeTrue())

				prompts, err = server.Prompts()
				Expect(err).NotTo(HaveOccurred())
				Expect(prompts.Prompts).To(BeEmpty())
			})

			It("abandons the update when the user declines", func() {
				resp, err := server.Decide(appID, "negative")
				expectStatus(resp, err, http.StatusNoContent)

				Eventually(stateOf(appID), 5*time.Second, 50*time.Millisecond).Should(Equal(coordinator.StateIdle))

				status, err := server.AppStatus(appID)
				Expect(err).NotTo(HaveOccurred())
				Expect(status.Record.UpdateScheduled).To(BeFalse())
				Expect(status.Record.LastRequestSucceeded).To(BeFalse())
				Expect(status.Record.ApprovedIdentityHash).To(BeEmpty())
				Expect(status.Record.PendingRequestPath).To(BeEmpty())

				resp, err = server.Decide(appID, "positive")
				expectStatus(resp, err, http.StatusNotFound)
			})

			It("forgets the app and withdraws its prompt on removal", func() {
				resp, err := server.DeleteApp(appID)
				expectStatus(resp, err, http.StatusNoContent)

				resp, err = server.GetApp(appID)
				expectStatus(resp, err, http.StatusNotFound)

				prompts, err := server.Prompts()
				Expect(err).NotTo(HaveOccurred())
				Expect(prompts.Prompts).To(BeEmpty())
			})
		})
	})

	Context("with sqlite storage and no manifest available", func() {
		BeforeEach(func() {
			startServer(&helpers.ConfigOptions{StorageType: config.StorageTypeSQLite})
		})

		It("republishes a stale app from its installed snapshot", func() {
			app := helpers.InstalledApp(appID, "100")

			resp, err := server.Activate(app)
			Expect(err).NotTo(HaveOccurred())
			Expect(decodeActivation(resp).Started).To(BeTrue())

			Eventually(stateOf(appID), 5*time.Second, 50*time.Millisecond).Should(Equal(coordinator.StateScheduled))
			Expect(snapshot.Requests()).To(ContainElement(appID))

			resp, err = server.ReportDelivery(appID, "failure", true)
			expectStatus(resp, err, http.StatusNoContent)

			status, err := server.AppStatus(appID)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.State).To(Equal(coordinator.StateIdle))
			Expect(status.Record.LastRequestSucceeded).To(BeFalse())
			Expect(status.Record.RelaxUpdates).To(BeTrue())
		})
	})
})

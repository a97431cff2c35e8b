package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"

	v1 "github.com/stacklok/pwa-update-manager/internal/api/v1"
	updateapp "github.com/stacklok/pwa-update-manager/internal/app"
	"github.com/stacklok/pwa-update-manager/internal/config"
	"github.com/stacklok/pwa-update-manager/internal/coordinator"
	"github.com/stacklok/pwa-update-manager/internal/webapp"
)

// ServerTestHelper manages the update manager server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	address    string
	httpClient *http.Client
	app        *updateapp.UpdateApp
}

// NewServerTestHelper creates a new server test helper listening on a free local port
func NewServerTestHelper(ctx context.Context, configPath string) *ServerTestHelper {
	address := freeAddress()
	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		baseURL:    "http://" + address,
		address:    address,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func freeAddress() string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	addr := listener.Addr().String()
	gomega.Expect(listener.Close()).To(gomega.Succeed())
	return addr
}

// StartServer starts the update manager server programmatically
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := updateapp.NewUpdateApp(s.ctx,
		updateapp.WithConfig(cfg),
		updateapp.WithAddress(s.address),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}

	s.app = app

	go func() {
		if err := app.Start(); err != nil {
			// The test fails when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()

	return nil
}

// StopServer gracefully stops the server
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits for the server to be ready to accept requests
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

func (s *ServerTestHelper) appURL(appID, suffix string) string {
	return fmt.Sprintf("%s/v1/apps/%s%s", s.baseURL, url.PathEscape(appID), suffix)
}

func (s *ServerTestHelper) send(method, target string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(s.ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.httpClient.Do(req)
}

// Activate makes a POST request to /v1/apps/{id}/activations
func (s *ServerTestHelper) Activate(app *webapp.App) (*http.Response, error) {
	return s.send(http.MethodPost, s.appURL(app.ID, "/activations"), app)
}

// ForceUpdate makes a POST request to /v1/apps/{id}/force-update
func (s *ServerTestHelper) ForceUpdate(appID, packageName string) (*http.Response, error) {
	return s.send(http.MethodPost, s.appURL(appID, "/force-update"), v1.ForceUpdateRequest{PackageName: packageName})
}

// ReportDelivery makes a POST request to /v1/apps/{id}/delivery-result
func (s *ServerTestHelper) ReportDelivery(appID, result string, relaxUpdates bool) (*http.Response, error) {
	return s.send(http.MethodPost, s.appURL(appID, "/delivery-result"),
		v1.DeliveryResultRequest{Result: result, RelaxUpdates: relaxUpdates})
}

// GetApp makes a GET request to /v1/apps/{id}
func (s *ServerTestHelper) GetApp(appID string) (*http.Response, error) {
	return s.send(http.MethodGet, s.appURL(appID, ""), nil)
}

// DeleteApp makes a DELETE request to /v1/apps/{id}
func (s *ServerTestHelper) DeleteApp(appID string) (*http.Response, error) {
	return s.send(http.MethodDelete, s.appURL(appID, ""), nil)
}

// GetPrompts makes a GET request to /v1/prompts
func (s *ServerTestHelper) GetPrompts() (*http.Response, error) {
	return s.send(http.MethodGet, s.baseURL+"/v1/prompts", nil)
}

// Decide makes a POST request to /v1/prompts/{id}/decision
func (s *ServerTestHelper) Decide(appID, action string) (*http.Response, error) {
	target := fmt.Sprintf("%s/v1/prompts/%s/decision", s.baseURL, url.PathEscape(appID))
	return s.send(http.MethodPost, target, v1.DecisionRequest{Action: action})
}

// AppStatus fetches and decodes the status of appID
func (s *ServerTestHelper) AppStatus(appID string) (*coordinator.AppStatus, error) {
	resp, err := s.GetApp(appID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	var status coordinator.AppStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Prompts fetches and decodes the prompts awaiting an answer
func (s *ServerTestHelper) Prompts() (*v1.PromptListResponse, error) {
	resp, err := s.GetPrompts()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	var list v1.PromptListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetBaseURL returns the base URL of the server
func (s *ServerTestHelper) GetBaseURL() string {
	return s.baseURL
}

// ConfigOptions holds optional settings for WriteConfigYAML
type ConfigOptions struct {
	StorageType   string
	ManualTrigger bool
}

// WriteConfigYAML writes a configuration file for testing and returns its path
func WriteConfigYAML(dir, snapshotEndpoint, targetRuntimeVersion string, opts *ConfigOptions) string {
	if opts == nil {
		opts = &ConfigOptions{}
	}
	storageType := opts.StorageType
	if storageType == "" {
		storageType = config.StorageTypeFile
	}

	configContent := fmt.Sprintf(`dataDir: %s

storage:
  type: %s

update:
  targetRuntimeVersion: "%s"
  interval: 24h
  fetchTimeout: 5s
  lateManifestWindow: 1s
  manualTrigger: %t

fetcher:
  endpoint: %s
  timeout: 2s
`, filepath.Join(dir, "data"), storageType, targetRuntimeVersion, opts.ManualTrigger, snapshotEndpoint)

	configPath := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(configPath, []byte(configContent), 0600)).To(gomega.Succeed())
	return configPath
}

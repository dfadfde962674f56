package main

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Smoke check against a deployed server: health, status, and a provider
// credential check when a provider id is given. Run from a trusted network;
// the internal token authorizes the gateway-trust boundary.

type statusResponse struct {
	Environment    string   `json:"environment"`
	ConfigErrors   []string `json:"configErrors"`
	ConfigWarnings []string `json:"configWarnings"`
	ArmedLockouts  int      `json:"armedLockouts"`
}

type providerCheckResponse struct {
	Provider string `json:"provider"`
	OK       bool   `json:"ok"`
	Detail   string `json:"detail"`
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func loadTokenFromSecretsFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	secrets, _ := doc["secrets"].(map[string]any)
	token, _ := secrets["internalToken"].(string)
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("secrets.internalToken not set")
	}
	return token, nil
}

func doJSON(client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte, error) {
	var r io.Reader
	if body != nil {
		enc, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		r = bytes.NewReader(enc)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b, nil
}

func main() {
	baseURL := strings.TrimRight(getenv("STACKSHOP_BASE_URL", "http://localhost:4000"), "/")
	username := getenv("STACKSHOP_SMOKE_USERNAME", "smokecheck")
	token := strings.TrimSpace(os.Getenv("STACKSHOP_INTERNAL_TOKEN"))
	if token == "" {
		// Convenience: use local deploy secrets file (keeps the token out of shell history).
		secretsPath := getenv("STACKSHOP_SECRETS_FILE", "../deploy/stackshop-secrets.yaml")
		abs, _ := filepath.Abs(secretsPath)
		loaded, err := loadTokenFromSecretsFile(abs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "missing STACKSHOP_INTERNAL_TOKEN and failed to load from %s: %v\n", abs, err)
			os.Exit(2)
		}
		token = loaded
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // intended for internal/self-signed lab env
	}
	client := &http.Client{Timeout: 20 * time.Second, Transport: tr}
	authHeaders := map[string]string{
		"Authorization":    "Bearer " + token,
		"X-Stackshop-User": username,
	}

	healthURL := baseURL + "/api/health"
	resp, body, err := doJSON(client, http.MethodGet, healthURL, nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health request failed: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "health failed: %s\n", strings.TrimSpace(string(body)))
		os.Exit(1)
	}
	fmt.Printf("OK health: %s\n", healthURL)

	statusURL := baseURL + "/api/status"
	resp, body, err = doJSON(client, http.MethodGet, statusURL, nil, authHeaders)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status request failed: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "status failed (%d): %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
		os.Exit(1)
	}
	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		fmt.Fprintf(os.Stderr, "status parse failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK status: env=%s armed_lockouts=%d\n", status.Environment, status.ArmedLockouts)
	for _, e := range status.ConfigErrors {
		fmt.Printf("  config error: %s\n", e)
	}
	for _, w := range status.ConfigWarnings {
		fmt.Printf("  config warning: %s\n", w)
	}
	if len(status.ConfigErrors) > 0 {
		os.Exit(1)
	}

	providerID := strings.TrimSpace(os.Getenv("STACKSHOP_SMOKE_PROVIDER_ID"))
	if providerID == "" {
		return
	}
	checkURL := baseURL + "/api/providers/" + providerID + "/check"
	resp, body, err = doJSON(client, http.MethodPost, checkURL, nil, authHeaders)
	if err != nil {
		fmt.Fprintf(os.Stderr, "provider check request failed: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "provider check failed (%d): %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
		os.Exit(1)
	}
	var check providerCheckResponse
	if err := json.Unmarshal(body, &check); err != nil {
		fmt.Fprintf(os.Stderr, "provider check parse failed: %v\n", err)
		os.Exit(1)
	}
	if !check.OK {
		fmt.Fprintf(os.Stderr, "provider %s credential check failed: %s\n", check.Provider, check.Detail)
		os.Exit(1)
	}
	fmt.Printf("OK provider check: %s\n", check.Provider)
}

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

// Revokes every console session a user holds. Operator tool for offboarding
// and incident response; talks to the close-user endpoint as an admin.

type closeUserRequest struct {
	UserID string `json:"userId"`
}

type closeResponse struct {
	Closed int64 `json:"closed"`
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
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: purgesessions <username>")
		os.Exit(2)
	}
	target := strings.TrimSpace(os.Args[1])
	if target == "" {
		fmt.Fprintln(os.Stderr, "username is required")
		os.Exit(2)
	}

	baseURL := strings.TrimRight(getenv("STACKSHOP_BASE_URL", "http://localhost:4000"), "/")
	admin := getenv("STACKSHOP_ADMIN_USERNAME", "stackshop-admin")
	token := strings.TrimSpace(os.Getenv("STACKSHOP_INTERNAL_TOKEN"))
	if token == "" {
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
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // internal/self-signed lab env
	}
	client := &http.Client{Timeout: 20 * time.Second, Transport: tr}

	closeURL := baseURL + "/api/sessions/close-user"
	resp, body, err := doJSON(client, http.MethodPost, closeURL, closeUserRequest{UserID: target}, map[string]string{
		"Authorization":    "Bearer " + token,
		"X-Stackshop-User": admin,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "close request failed: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "close failed (%d): %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
		os.Exit(1)
	}
	var out closeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		fmt.Fprintf(os.Stderr, "close parse failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK closed %d session(s) for %s\n", out.Closed, target)
}

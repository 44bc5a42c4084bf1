package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/mcpay/engine"
	"github.com/vitwit/mcpay/store"
	"github.com/vitwit/mcpay/tools"
	"github.com/vitwit/mcpay/types"
	"github.com/vitwit/mcpay/wallet"
)

const testRecipient = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

func newTestServer(t *testing.T, failWith types.Reason) *httptest.Server {
	t.Helper()

	verifier := &wallet.FakeVerifier{
		ReceivingAddress: testRecipient,
		Network:          "Base Sepolia",
		ExplorerURL:      "https://sepolia.basescan.org",
		FailWith:         failWith,
	}
	registry := tools.DefaultRegistry("Base Sepolia")
	eng := engine.New(registry, verifier, "Base Sepolia")
	srv := NewServer(store.NewMemoryStore(), eng, registry)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, payload any) (int, map[string]any) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func createContext(t *testing.T, ts *httptest.Server, metadata map[string]any) string {
	t.Helper()

	status, body := postJSON(t, ts.URL+"/context", map[string]any{"metadata": metadata})
	require.Equal(t, http.StatusOK, status)

	id, ok := body["contextId"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)
	return id
}

func sendMessage(t *testing.T, ts *httptest.Server, contextID, content string) (int, map[string]any) {
	t.Helper()
	return postJSON(t, fmt.Sprintf("%s/context/%s/message", ts.URL, contextID), map[string]any{
		"role":    "user",
		"content": content,
	})
}

func TestCreateAndGetContext(t *testing.T) {
	ts := newTestServer(t, types.ReasonNone)

	id := createContext(t, ts, map[string]any{"client": "test-suite"})

	status, body := getJSON(t, ts.URL+"/context/"+id)
	require.Equal(t, http.StatusOK, status)

	conv := body["context"].(map[string]any)
	assert.Equal(t, id, conv["id"])
	assert.Empty(t, conv["messages"])
	assert.Equal(t, "test-suite", conv["metadata"].(map[string]any)["client"])
}

func TestGetUnknownContext(t *testing.T) {
	ts := newTestServer(t, types.ReasonNone)

	status, body := getJSON(t, ts.URL+"/context/no-such-id")
	assert.Equal(t, http.StatusNotFound, status)

	errObj := body["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestPostMessageToUnknownContext(t *testing.T) {
	ts := newTestServer(t, types.ReasonNone)

	status, _ := postJSON(t, ts.URL+"/context/no-such-id/message", map[string]any{
		"role": "user", "content": "hi",
	})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPostMessageInvalidRole(t *testing.T) {
	ts := newTestServer(t, types.ReasonNone)
	id := createContext(t, ts, nil)

	status, body := postJSON(t, fmt.Sprintf("%s/context/%s/message", ts.URL, id), map[string]any{
		"role": "system", "content": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", body["error"].(map[string]any)["code"])
}

func TestFreeToolRoundTrip(t *testing.T) {
	ts := newTestServer(t, types.ReasonNone)
	id := createContext(t, ts, nil)

	status, body := sendMessage(t, ts, id, "/capitalize hello world")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Tool capitalize result: HELLO WORLD", body["response"])

	conv := body["context"].(map[string]any)
	messages := conv["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", messages[1].(map[string]any)["role"])

	meta := conv["lastProcessingMetadata"].(map[string]any)
	assert.Equal(t, "capitalize", meta["toolName"])
}

func TestAssistantMessageNotProcessed(t *testing.T) {
	ts := newTestServer(t, types.ReasonNone)
	id := createContext(t, ts, nil)

	status, body := postJSON(t, fmt.Sprintf("%s/context/%s/message", ts.URL, id), map[string]any{
		"role": "assistant", "content": "/capitalize should not run",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "", body["response"])

	messages := body["context"].(map[string]any)["messages"].([]any)
	assert.Len(t, messages, 1)
}

func TestPaidToolFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t, types.ReasonNone)
	id := createContext(t, ts, nil)

	// Without proof the tool demands payment.
	status, body := sendMessage(t, ts, id, "/hash hello")
	require.Equal(t, http.StatusOK, status)

	meta := body["context"].(map[string]any)["lastProcessingMetadata"].(map[string]any)
	assert.Equal(t, true, meta["requiresPayment"])
	assert.Equal(t, "0.10", meta["amount"])
	assert.Equal(t, "USDC", meta["currency"])
	assert.Equal(t, testRecipient, meta["recipient"])

	// With a verified proof the result comes back.
	status, body = sendMessage(t, ts, id, "/hash hello --tx=0xABC123")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["response"], "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d")

	meta = body["context"].(map[string]any)["lastProcessingMetadata"].(map[string]any)
	assert.Equal(t, true, meta["paymentVerified"])
	assert.Equal(t, "0xABC123", meta["txHash"])
}

func TestPaidToolRejectionOverHTTP(t *testing.T) {
	ts := newTestServer(t, types.ReasonNotFound)
	id := createContext(t, ts, nil)

	status, body := sendMessage(t, ts, id, "/hash hello --tx=0xDEADBEEF")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["response"], "❌ Payment verification failed: Transaction not found or not confirmed")

	meta := body["context"].(map[string]any)["lastProcessingMetadata"].(map[string]any)
	assert.Equal(t, false, meta["paymentVerified"])
	assert.Equal(t, "Transaction not found or not confirmed", meta["reason"])
}

func TestListContexts(t *testing.T) {
	ts := newTestServer(t, types.ReasonNone)
	first := createContext(t, ts, nil)
	second := createContext(t, ts, nil)

	status, body := getJSON(t, ts.URL+"/contexts")
	require.Equal(t, http.StatusOK, status)

	contexts := body["contexts"].([]any)
	require.Len(t, contexts, 2)
	assert.Equal(t, first, contexts[0].(map[string]any)["id"])
	assert.Equal(t, second, contexts[1].(map[string]any)["id"])
}

func TestListTools(t *testing.T) {
	ts := newTestServer(t, types.ReasonNone)

	status, body := getJSON(t, ts.URL+"/tools")
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["usage"])

	catalog := body["tools"].(map[string]any)
	require.Contains(t, catalog, "capitalize")
	require.Contains(t, catalog, "hash")
	require.Contains(t, catalog, "freetieraccesskeys")
	require.Contains(t, catalog, "paidtieraccesskeys")

	hash := catalog["hash"].(map[string]any)
	assert.Equal(t, true, hash["paymentRequired"])
	assert.Equal(t, "0.10", hash["paymentAmount"])
	assert.Equal(t, "USDC", hash["paymentCurrency"])
	assert.Equal(t, "Base Sepolia", hash["paymentNetwork"])

	capitalize := catalog["capitalize"].(map[string]any)
	assert.NotContains(t, capitalize, "paymentRequired")
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, types.ReasonNone)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	banner, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "mcpay server is running", string(banner))

	status, body := getJSON(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

package webhook

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingProcessor struct {
	payloads [][]byte
	err      error
}

func (p *recordingProcessor) ProcessEvent(ctx context.Context, payload []byte) error {
	p.payloads = append(p.payloads, payload)
	return p.err
}

func encrypt(t *testing.T, plain []byte, encryptKey string) string {
	t.Helper()
	key := sha256.Sum256([]byte(encryptKey))
	block, err := aes.NewCipher(key[:])
	require.NoError(t, err)

	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)

	iv := bytes.Repeat([]byte{7}, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(append(iv, out...))
}

func setupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhook/lark", h.Handle)
	return r
}

func post(r *gin.Engine, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/lark", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandle_Challenge(t *testing.T) {
	proc := &recordingProcessor{}
	r := setupRouter(NewHandler(NewVerifier("tok", ""), proc, zap.NewNop()))

	w := post(r, []byte(`{"type":"url_verification","token":"tok","challenge":"abc"}`), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "abc", resp["challenge"])
	assert.Empty(t, proc.payloads)

	w = post(r, []byte(`{"type":"url_verification","token":"wrong","challenge":"abc"}`), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandle_SignedEncryptedEvent(t *testing.T) {
	const key = "encrypt-key"
	proc := &recordingProcessor{}
	r := setupRouter(NewHandler(NewVerifier("", key), proc, zap.NewNop()))

	event := []byte(`{"header":{"event_type":"approval_instance"},"event":{"instance_code":"INST-1","status":"APPROVED"}}`)
	body, err := json.Marshal(map[string]string{"encrypt": encrypt(t, event, key)})
	require.NoError(t, err)

	headers := map[string]string{
		"X-Lark-Request-Timestamp": "1700000000",
		"X-Lark-Request-Nonce":     "n1",
		"X-Lark-Signature":         Sign("1700000000", "n1", key, body),
	}
	w := post(r, body, headers)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, proc.payloads, 1)
	assert.JSONEq(t, string(event), string(proc.payloads[0]))

	headers["X-Lark-Signature"] = "bad"
	w = post(r, body, headers)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Len(t, proc.payloads, 1)
}

func TestHandle_ProcessorError(t *testing.T) {
	proc := &recordingProcessor{err: errors.New("db down")}
	r := setupRouter(NewHandler(NewVerifier("", ""), proc, zap.NewNop()))

	w := post(r, []byte(`{"header":{"event_type":"approval_instance"},"event":{}}`), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandle_MalformedBody(t *testing.T) {
	r := setupRouter(NewHandler(NewVerifier("", ""), &recordingProcessor{}, zap.NewNop()))

	w := post(r, []byte(`not json`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecrypt_RejectsBadInput(t *testing.T) {
	_, err := Decrypt("%%%", "k")
	assert.Error(t, err)

	_, err = Decrypt(base64.StdEncoding.EncodeToString([]byte("short")), "k")
	assert.Error(t, err)
}

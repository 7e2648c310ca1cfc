package testhttp

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// DoGet sends GET request to url, checks status code and decodes JSON
// response body into response unless it is nil.
func DoGet(t *testing.T, url string, code int, response any) *http.Response {
	t.Helper()
	httpRes, err := http.Get(url) // #nosec G107
	require.NoError(t, err)
	defer func() {
		_ = httpRes.Body.Close()
	}()
	require.Equal(t, code, httpRes.StatusCode, "GET %s", url)
	if response != nil {
		require.NoError(t, json.NewDecoder(httpRes.Body).Decode(response))
	}
	return httpRes
}

package lib

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"cshop/src/types"

	"github.com/tidwall/gjson"
)

// BakongClient talks to the acquirer API that reports whether a KHQR
// fingerprint has settled. The only call the engine needs is the MD5 lookup.
type BakongClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

var bakongClient *BakongClient

func GetBakongClient() *BakongClient {
	if bakongClient != nil {
		return bakongClient
	}
	baseURL := os.Getenv("BAKONG_API_URL")
	if baseURL == "" {
		baseURL = "https://api-bakong.nbc.gov.kh"
	}
	bakongClient = &BakongClient{
		BaseURL:    baseURL,
		Token:      os.Getenv("BAKONG_API_TOKEN"),
		HTTPClient: &http.Client{},
	}
	return bakongClient
}

// NewBakongClient replaces the client instance with a custom implementation
func NewBakongClient(c *BakongClient) *BakongClient {
	bakongClient = c
	return bakongClient
}

// CheckPayment asks the acquirer whether the transaction identified by the
// MD5 fingerprint has been paid. An unknown hash is UNPAID, not an error;
// errors mean the answer is unknown and the caller should retry later.
func (c *BakongClient) CheckPayment(ctx context.Context, md5hash string) (types.AcquirerStatus, error) {
	body, err := json.Marshal(map[string]string{"md5": md5hash})
	if err != nil {
		return types.ACQUIRER_UNPAID, err
	}
	url := c.BaseURL + "/v1/check_transaction_by_md5"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return types.ACQUIRER_UNPAID, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return types.ACQUIRER_UNPAID, err
	}
	defer res.Body.Close()
	rbytes, err := io.ReadAll(res.Body)
	if err != nil {
		return types.ACQUIRER_UNPAID, err
	}
	if res.StatusCode >= http.StatusInternalServerError {
		return types.ACQUIRER_UNPAID, fmt.Errorf("acquirer returned status %d", res.StatusCode)
	}
	if !gjson.ValidBytes(rbytes) {
		log.Printf("[bakong] Received invalid json body for %s\n", md5hash)
		return types.ACQUIRER_UNPAID, fmt.Errorf("acquirer returned invalid json")
	}
	responseCode := gjson.GetBytes(rbytes, "responseCode")
	if responseCode.Exists() && responseCode.Int() == 0 && gjson.GetBytes(rbytes, "data.hash").Exists() {
		return types.ACQUIRER_PAID, nil
	}
	return types.ACQUIRER_UNPAID, nil
}

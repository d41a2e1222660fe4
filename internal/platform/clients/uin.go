package clients

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// UIN asks the UIN generator for a new unique identification number.
type UIN struct {
	caller
}

// NewUIN returns a client for the generator at baseURL.
func NewUIN(baseURL string, timeout time.Duration) *UIN {
	return &UIN{caller: newCaller("uin", baseURL, timeout)}
}

// Generate posts the biographic hints (gender, dateOfBirth) and returns the new UIN.
func (c *UIN) Generate(ctx context.Context, transactionID string, attrs map[string]string) (string, error) {
	path := "/v1/uin?" + url.Values{"transactionId": {transactionID}}.Encode()
	var uin string
	if err := c.post(ctx, path, attrs, &uin); err != nil {
		return "", err
	}
	if uin == "" {
		return "", fmt.Errorf("uin generator returned an empty UIN")
	}
	return uin, nil
}

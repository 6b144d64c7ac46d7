package core

import (
	"encoding/json"
	"fmt"
)

// Wire shapes for the Confirmation-of-Payee registry API.

type RegistryRequest struct {
	SortCode      string `json:"sort_code"`
	AccountNumber string `json:"account_number"`
	Name          string `json:"name"`
}

type RegistryResponse struct {
	Result      string `json:"result"`
	AccountName string `json:"account_name,omitempty"`
}

func EncodeRegistryRequest(req RegistryRequest) ([]byte, error) {
	return json.Marshal(req)
}

func DecodeRegistryResponse(raw []byte) (RegistryResponse, error) {
	var resp RegistryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, fmt.Errorf("decode registry response: %w", err)
	}
	return resp, nil
}

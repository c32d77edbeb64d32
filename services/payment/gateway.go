package cardsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
)

type gatewayCharger struct {
	apiURL string
	key    string
	client *http.Client
}

var _ billing.CardCharger = (*gatewayCharger)(nil)

// NewGatewayCharger charges cards through the external gateway configured via
// CardGatewayUrl/CardGatewayKey.
func NewGatewayCharger() *gatewayCharger {
	return &gatewayCharger{
		apiURL: core.Conf.CardGatewayUrl,
		key:    core.Conf.CardGatewayKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type (
	chargeRequest struct {
		PayerID  string `json:"payer_id"`
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}
	chargeResponse struct {
		Ref    string `json:"ref"`
		Status string `json:"status"`
	}
)

func (svc *gatewayCharger) Charge(ctx context.Context, payerID string, amount core.Money) (string, error) {
	payload, err := json.Marshal(chargeRequest{
		PayerID:  payerID,
		Amount:   amount.Amount.StringFixed(2),
		Currency: amount.Currency,
	})
	if err != nil {
		return "", errors.Wrap(err, "encoding charge request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.apiURL+"/charges", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "building charge request")
	}
	req.Header.Set("Authorization", "Bearer "+svc.key)
	req.Header.Set("Content-Type", "application/json")

	res, err := svc.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "sending charge request")
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("charge declined - status: %d", res.StatusCode)
	}

	var data chargeResponse
	if err = json.NewDecoder(res.Body).Decode(&data); err != nil {
		return "", errors.Wrap(err, "decoding charge response")
	}
	if data.Ref == "" {
		return "", errors.New("gateway returned no charge reference")
	}
	return data.Ref, nil
}

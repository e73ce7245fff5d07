package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"payflow/internal/config"
	"payflow/internal/domain"
	"payflow/internal/redis"
)

// EbarimtService registers electronic tax receipts for processed
// sessions. Registration is an independent, retryable sub-process: a
// failure is recorded on the session and never reverts or blocks the
// order.
type EbarimtService struct {
	cfg        config.EbarimtConfig
	store      redis.SessionStoreInterface
	httpClient *http.Client
}

// NewEbarimtService creates a new EbarimtService.
func NewEbarimtService(cfg config.EbarimtConfig, store redis.SessionStoreInterface) *EbarimtService {
	return &EbarimtService{
		cfg:        cfg,
		store:      store,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type ebarimtRequest struct {
	MerchantNo   string `json:"merchant_no"`
	Amount       int64  `json:"amount"`
	ReceiverType string `json:"receiver_type"`
	RegisterNo   string `json:"register_no,omitempty"`
	Reference    string `json:"reference"`
}

type ebarimtResponse struct {
	ReceiptID string `json:"id"`
	QRData    string `json:"qr_data"`
}

// Register submits the receipt request for a processed session and
// records the outcome in the session's ebarimt sub-record. The updated
// session is returned; the write is a body-only swap on the current
// status so a concurrent transition is never overwritten.
func (s *EbarimtService) Register(ctx context.Context, session *domain.PaymentSession) (*domain.PaymentSession, error) {
	if session.Ebarimt == nil {
		return session, nil
	}

	info, err := s.submit(ctx, session)

	updated := *session
	updated.EbarimtInfo = info

	if ok, casErr := s.store.CompareAndSwapStatus(ctx, &updated, session.Status); casErr != nil || !ok {
		if fresh, getErr := s.store.Get(ctx, session.SessionID); getErr == nil {
			return fresh, err
		}
	}
	return &updated, err
}

func (s *EbarimtService) submit(ctx context.Context, session *domain.PaymentSession) (*domain.EbarimtInfo, error) {
	amount := session.ExpectedAmount
	if session.PaidAmount != nil {
		amount = *session.PaidAmount
	}

	body := ebarimtRequest{
		MerchantNo:   s.cfg.MerchantNo,
		Amount:       amount,
		ReceiverType: session.Ebarimt.ReceiverType,
		RegisterNo:   session.Ebarimt.RegisterNo,
		Reference:    session.SessionID,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return failedInfo(err), err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/rest/receipt", bytes.NewReader(payload))
	if err != nil {
		return failedInfo(err), err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return failedInfo(err), err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("ebarimt returned %d: %s", resp.StatusCode, raw)
		return failedInfo(err), err
	}

	var receipt ebarimtResponse
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return failedInfo(err), err
	}

	return &domain.EbarimtInfo{
		Status:    domain.EbarimtStatusRegistered,
		ReceiptID: receipt.ReceiptID,
		QRData:    receipt.QRData,
	}, nil
}

func failedInfo(err error) *domain.EbarimtInfo {
	return &domain.EbarimtInfo{
		Status:    domain.EbarimtStatusFailed,
		LastError: err.Error(),
	}
}

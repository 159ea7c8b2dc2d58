// Package renderer отвечает за генерацию PDF счетов и хранение артефактов.
// Генерацию выполняет внешний сервис рендеринга; его вызов обёрнут
// в circuit breaker, чтобы деградация рендерера не растянула обработку
// всего потока событий.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"example.com/travel-booking/pkg/circuitbreaker"
	"example.com/travel-booking/pkg/logger"
	"example.com/travel-booking/services/invoice/internal/domain"
)

// Renderer генерирует PDF для счёта.
type Renderer interface {
	// Render возвращает байты PDF. Любая ошибка восстановима:
	// счёт остаётся в PENDING_PDF, генерация повторится позже.
	Render(ctx context.Context, invoice *domain.Invoice) ([]byte, error)
}

// ArtifactStore сохраняет PDF артефакты и возвращает ссылку на них.
type ArtifactStore interface {
	// Save сохраняет артефакт и возвращает URL для поля pdf_url.
	Save(ctx context.Context, invoiceID string, pdf []byte) (string, error)
}

// =============================================================================
// HTTP рендерер
// =============================================================================

// renderRequest — тело запроса к сервису рендеринга.
type renderRequest struct {
	InvoiceID     string `json:"invoice_id"`
	BookingID     string `json:"booking_id"`
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id"`
	Type          string `json:"type"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	TransactionID string `json:"transaction_id"`
}

// HTTPRenderer — клиент внешнего сервиса рендеринга PDF.
type HTTPRenderer struct {
	url     string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

// NewHTTPRenderer создаёт клиент рендерера.
func NewHTTPRenderer(url string, timeout time.Duration) *HTTPRenderer {
	return &HTTPRenderer{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New("invoice-renderer"),
	}
}

// Render запрашивает генерацию PDF у внешнего сервиса.
func (r *HTTPRenderer) Render(ctx context.Context, invoice *domain.Invoice) ([]byte, error) {
	pdf, err := circuitbreaker.Do(r.breaker, func() ([]byte, error) {
		return r.render(ctx, invoice)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRenderFailure, err)
	}
	return pdf, nil
}

func (r *HTTPRenderer) render(ctx context.Context, invoice *domain.Invoice) ([]byte, error) {
	body, err := json.Marshal(renderRequest{
		InvoiceID:     invoice.ID,
		BookingID:     invoice.BookingID,
		OrderID:       invoice.OrderID,
		UserID:        invoice.UserID,
		Type:          string(invoice.Type),
		Amount:        invoice.Amount,
		Currency:      invoice.Currency,
		TransactionID: invoice.TransactionID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("рендерер вернул статус %d", resp.StatusCode)
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("рендерер вернул пустой ответ")
	}

	logger.Ctx(ctx).Debug().
		Str("invoice_id", invoice.ID).
		Int("size", len(pdf)).
		Msg("PDF сгенерирован")

	return pdf, nil
}

// =============================================================================
// Файловое хранилище артефактов
// =============================================================================

// FileArtifactStore сохраняет PDF на локальный диск (volume).
type FileArtifactStore struct {
	dir string
}

// NewFileArtifactStore создаёт хранилище артефактов в указанной директории.
func NewFileArtifactStore(dir string) (*FileArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории артефактов: %w", err)
	}
	return &FileArtifactStore{dir: dir}, nil
}

// Save сохраняет PDF и возвращает file:// ссылку.
// Запись через временный файл с переименованием — читатель никогда
// не увидит недописанный артефакт.
func (s *FileArtifactStore) Save(ctx context.Context, invoiceID string, pdf []byte) (string, error) {
	finalPath := filepath.Join(s.dir, invoiceID+".pdf")
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, pdf, 0o644); err != nil {
		return "", fmt.Errorf("ошибка записи артефакта: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка сохранения артефакта: %w", err)
	}

	return "file://" + finalPath, nil
}

package httpx

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

const (
	// headerIdempotencyKey — клиентский ключ повторяемого запроса.
	headerIdempotencyKey = "Idempotency-Key"
	// headerIdempotentReplay ставится в ответ, собранный из сохранённой записи.
	headerIdempotentReplay = "X-Idempotent-Replay"

	// idempotencyTTL — срок хранения записи; очисткой занимается
	// фоновый cleanup-воркер.
	idempotencyTTL = 24 * time.Hour
)

// idempotent реализует повтор запросов по заголовку Idempotency-Key:
// первый запрос выполняется и его ответ сохраняется, повтор с тем же ключом
// и тем же телом получает сохранённый ответ без побочных эффектов.
// Повтор с тем же ключом, но другим телом отклоняется.
func (h *OrdersHandler) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(headerIdempotencyKey)
		if key == "" || h.idempotency == nil {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cannot read request body"})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		hash := requestHash(r.Method, r.URL.Path, body)
		ctx := r.Context()

		_, err = h.idempotency.CreateProcessing(ctx, key, hash, time.Now().UTC().Add(idempotencyTTL))
		switch {
		case err == nil:
			// первый запрос с этим ключом
		case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
			h.replay(w, r, key)
			return
		case errors.Is(err, domain.ErrIdempotencyHashMismatch):
			writeJSON(w, http.StatusConflict, errorResponse{Error: domain.ErrIdempotencyHashMismatch.Error()})
			return
		default:
			writeError(w, h.logger, err)
			return
		}

		rec := newResponseRecorder(w)
		next.ServeHTTP(rec, r)

		// Ответ уже ушёл клиенту: ошибку записи фиксируем только в логе.
		if rec.status < http.StatusBadRequest {
			err = h.idempotency.MarkDone(ctx, key, rec.body.Bytes(), rec.status)
		} else {
			err = h.idempotency.MarkFailed(ctx, key, rec.body.Bytes(), rec.status)
		}
		if err != nil {
			h.logger.WithError(err).WithField("idempotency_key", key).
				Warn("Не удалось сохранить результат идемпотентного запроса")
		}
	})
}

// replay отдаёт сохранённый ответ по уже известному ключу. Запрос,
// который ещё обрабатывается, повторять рано.
func (h *OrdersHandler) replay(w http.ResponseWriter, r *http.Request, key string) {
	record, err := h.idempotency.Get(r.Context(), key)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if record.Status == domain.IdempotencyStatusProcessing {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "request is still being processed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(headerIdempotentReplay, "true")
	w.WriteHeader(record.HTTPStatus)
	_, _ = w.Write(record.ResponseBody)
}

func requestHash(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{0})
	sum.Write([]byte(path))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

// responseRecorder дублирует ответ в буфер, не мешая записи клиенту.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

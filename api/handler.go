package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lovepages/tribute-server/domain"
	"github.com/lovepages/tribute-server/payment"
	"github.com/lovepages/tribute-server/tribute"
	"github.com/lovepages/tribute-server/tribute/tributerepo"
)

type upsertRequest struct {
	Slug       string   `json:"slug"`
	Plan       string   `json:"plan"`
	Email      string   `json:"email"`
	CoupleName string   `json:"coupleName"`
	Message    string   `json:"message"`
	Story      string   `json:"story"`
	YoutubeUrl string   `json:"youtubeUrl"`
	StartDate  string   `json:"startDate"`
	Images     []string `json:"images"`
	AudioUrl   string   `json:"audioUrl"`
}

func (a *api) upsertTribute(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if !a.decode(w, r, &req) {
		return
	}
	var startDate time.Time
	if req.StartDate != "" {
		var err error
		if startDate, err = time.Parse("2006-01-02", req.StartDate); err != nil {
			writeErr(w, http.StatusBadRequest, errors.New("startDate must be a YYYY-MM-DD date"))
			return
		}
	}
	saved, err := a.tribute.CreateOrUpdate(r.Context(), domain.Tribute{
		Slug:       req.Slug,
		Plan:       domain.Plan(req.Plan),
		Email:      req.Email,
		CoupleName: req.CoupleName,
		Message:    req.Message,
		Story:      req.Story,
		YoutubeUrl: req.YoutubeUrl,
		StartDate:  startDate,
		Images:     req.Images,
		AudioUrl:   req.AudioUrl,
	})
	if err != nil {
		switch {
		case errors.Is(err, tribute.ErrValidation):
			writeErr(w, http.StatusBadRequest, err)
		case errors.Is(err, tributerepo.ErrSlugTaken):
			writeErr(w, http.StatusConflict, err)
		default:
			log.Error("draft upsert failed", zap.String("slug", req.Slug), zap.Error(err))
			writeErr(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJson(w, http.StatusOK, map[string]string{"slug": saved.Slug})
}

func (a *api) getTribute(w http.ResponseWriter, r *http.Request) {
	// the paid flag can flip any second after checkout, intermediaries must not
	// hold on to this response
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	slug := r.PathValue("slug")
	tr, err := a.tribute.GetBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, tributerepo.ErrNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		log.Error("tribute read failed", zap.String("slug", slug), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJson(w, http.StatusOK, tr)
}

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9.]`)

type uploadUrlRequest struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	Slug     string `json:"slug"`
}

func (a *api) uploadUrl(w http.ResponseWriter, r *http.Request) {
	var req uploadUrlRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.FileName == "" || req.FileType == "" || req.Slug == "" {
		writeErr(w, http.StatusBadRequest, errors.New("fileName, fileType and slug are required"))
		return
	}
	var folder string
	switch {
	case strings.HasPrefix(req.FileType, "image/"):
		folder = "images"
	case strings.HasPrefix(req.FileType, "audio/"):
		folder = "audios"
	default:
		writeErr(w, http.StatusBadRequest, errors.New("unsupported file type"))
		return
	}
	// a uuid prefix keeps two uploads with the same name from clobbering each other
	safeName := uuid.New().String() + "_" + unsafeFileChars.ReplaceAllString(strings.ToLower(req.FileName), "_")
	key := a.conf.StagingPrefix + folder + "/" + req.Slug + "/" + safeName
	uploadUrl, err := a.store.PresignPut(r.Context(), key, req.FileType, time.Duration(a.conf.UploadTTLMin)*time.Minute)
	if err != nil {
		log.Error("presign failed", zap.String("key", key), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJson(w, http.StatusOK, map[string]string{
		"uploadUrl": uploadUrl,
		"key":       key,
	})
}

type checkoutRequest struct {
	Slug  string `json:"slug"`
	Plan  string `json:"plan"`
	Email string `json:"email"`
}

func (a *api) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Slug == "" {
		writeErr(w, http.StatusBadRequest, errors.New("slug is required"))
		return
	}
	plan := domain.Plan(req.Plan)
	if !plan.Valid() {
		writeErr(w, http.StatusBadRequest, errors.New("unknown plan"))
		return
	}
	checkoutUrl, err := a.payment.CreateCheckout(r.Context(), req.Slug, plan, req.Email)
	if err != nil {
		log.Error("checkout creation failed", zap.String("slug", req.Slug), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, errors.New("checkout creation failed"))
		return
	}
	writeJson(w, http.StatusOK, map[string]string{"checkoutUrl": checkoutUrl})
}

func (a *api) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.conf.MaxBodyBytes))
	if err != nil {
		writeErr(w, http.StatusBadRequest, errors.New("unreadable payload"))
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if err = a.payment.HandleEvent(r.Context(), payload, sig); err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			a.abuse.record(r)
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJson(w, http.StatusOK, map[string]bool{"received": true})
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	defer func() {
		_ = r.Body.Close()
	}()
	body := http.MaxBytesReader(w, r.Body, a.conf.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(into); err != nil {
		writeErr(w, http.StatusBadRequest, errors.New("invalid json body"))
		return false
	}
	return true
}

func writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(body)
	_, _ = w.Write(data)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJson(w, status, errResp{Error: err.Error()})
}

// abuseCounter keeps a per-source tally of webhook signature failures; a burst
// from one address is an abuse signal worth a loud log line.
type abuseCounter struct {
	redis redis.UniversalClient
}

func newAbuseCounter(client redis.UniversalClient) *abuseCounter {
	return &abuseCounter{redis: client}
}

func (c *abuseCounter) record(r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if c.redis == nil {
		log.Warn("webhook signature failure", zap.String("remote", host))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := "webhook:sigfail:" + host
	count, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		log.Warn("webhook signature failure", zap.String("remote", host))
		return
	}
	_ = c.redis.Expire(ctx, key, time.Hour).Err()
	if count >= 10 {
		log.Error("repeated webhook signature failures", zap.String("remote", host), zap.Int64("count", count))
	} else {
		log.Warn("webhook signature failure", zap.String("remote", host), zap.Int64("count", count))
	}
}

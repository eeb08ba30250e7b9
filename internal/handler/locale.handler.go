package handler

import (
	"net/http"
	"strings"

	"site-service/internal/locale"
	"site-service/pkg/response"
	"site-service/pkg/xerrors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// LocaleHandler serves message bundles and locale negotiation for the site.
type LocaleHandler struct {
	cache  *locale.BundleCache
	logger *zap.Logger
}

func NewLocaleHandler(cache *locale.BundleCache, logger *zap.Logger) *LocaleHandler {
	return &LocaleHandler{cache: cache, logger: logger}
}

type bundleResponse struct {
	Locale   string                 `json:"locale"`
	Messages map[string]interface{} `json:"messages"`
}

type detectResponse struct {
	Locale string `json:"locale"`
	Source string `json:"source"`
}

// GetBundle returns the message bundle for /api/i18n/{locale}.
func (h *LocaleHandler) GetBundle(w http.ResponseWriter, r *http.Request) {
	code := strings.ToLower(chi.URLParam(r, "locale"))

	bundle, err := h.cache.Get(code)
	if err != nil {
		if xerrors.HTTPStatus(err) == http.StatusNotFound {
			response.Error(w, http.StatusNotFound, "unsupported locale")
			return
		}
		h.logger.Error("failed to load locale bundle",
			zap.String("locale", code),
			zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "failed to load locale bundle")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	response.Raw(w, http.StatusOK, bundleResponse{Locale: bundle.Locale, Messages: bundle.Messages})
}

// DetectLocale negotiates the request's locale: cookie, then
// Accept-Language, then the default.
func (h *LocaleHandler) DetectLocale(w http.ResponseWriter, r *http.Request) {
	code, source := locale.Detect(r)
	response.Raw(w, http.StatusOK, detectResponse{Locale: code, Source: source})
}

package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"susd/engine"
	"susd/observability"
	"susd/observability/logging"
	"susd/oracle"
)

const requestLimit = 1 << 20 // 1 MiB

// Config assembles the HTTP surface for a running engine.
type Config struct {
	Engine *engine.Engine
	// Feeds maps collateral assets to their manual price feeds. Only assets
	// listed here accept admin price overrides.
	Feeds map[common.Address]*oracle.ManualFeed
	// APITokens guard the admin routes. Empty disables them entirely.
	APITokens []string
}

type server struct {
	engine *engine.Engine
	feeds  map[common.Address]*oracle.ManualFeed
	tokens []string
}

// New builds the query and admin router.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("gateway: nil engine")
	}
	s := &server{engine: cfg.Engine, feeds: cfg.Feeds, tokens: cfg.APITokens}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	metrics := observability.Gateway()
	r.Route("/v1", func(r chi.Router) {
		r.With(metrics.Middleware("assets")).
			Get("/assets", s.listAssets)
		r.With(metrics.Middleware("asset_feed")).
			Get("/assets/{asset}", s.assetFeed)
		r.With(metrics.Middleware("account")).
			Get("/accounts/{address}", s.accountSummary)
		r.With(metrics.Middleware("account_collateral")).
			Get("/accounts/{address}/collateral/{asset}", s.accountCollateral)
		r.With(metrics.Middleware("admin_feed")).
			Post("/admin/feeds/{asset}", s.requireAuth(s.overrideFeed))
	})
	return r, nil
}

func (s *server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(s.tokens) == 0 {
			writeError(w, http.StatusForbidden, "admin routes disabled")
			return
		}
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeError(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		presented := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		for _, tok := range s.tokens {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(tok)) == 1 {
				next(w, r)
				return
			}
		}
		slog.Warn("admin auth rejected",
			slog.String("route", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			logging.MaskField("token", presented),
		)
		writeError(w, http.StatusUnauthorized, "invalid token")
	}
}

type assetView struct {
	Address  string `json:"address"`
	PriceUsd string `json:"priceUsd,omitempty"`
	Stale    bool   `json:"stale,omitempty"`
}

// oneToken is a single collateral unit at 18 decimals.
var oneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func (s *server) listAssets(w http.ResponseWriter, _ *http.Request) {
	assets := s.engine.CollateralAssets()
	views := make([]assetView, 0, len(assets))
	for _, asset := range assets {
		view := assetView{Address: asset.Hex()}
		if price, err := s.engine.UsdValue(asset, oneToken); err == nil {
			view.PriceUsd = price.String()
		} else {
			view.Stale = true
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": views})
}

type feedView struct {
	Asset     string `json:"asset"`
	Answer    string `json:"answer"`
	Decimals  uint8  `json:"decimals"`
	RoundID   string `json:"roundId,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// assetFeed reports the raw latest round of the asset's price source, in the
// feed's own decimal scale and without staleness filtering, so operators can
// inspect a feed that valuation paths are rejecting.
func (s *server) assetFeed(w http.ResponseWriter, r *http.Request) {
	asset, ok := parseAddress(w, chi.URLParam(r, "asset"))
	if !ok {
		return
	}
	feed, err := s.engine.FeedFor(asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	round, err := feed.LatestRoundData()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	view := feedView{Asset: asset.Hex(), Decimals: feed.Decimals()}
	if round.Answer != nil {
		view.Answer = round.Answer.String()
	}
	if round.RoundID != nil {
		view.RoundID = round.RoundID.String()
	}
	if !round.UpdatedAt.IsZero() {
		view.UpdatedAt = round.UpdatedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, view)
}

type accountView struct {
	Address            string            `json:"address"`
	CollateralValueUsd string            `json:"collateralValueUsd"`
	MintedDebt         string            `json:"mintedDebt"`
	HealthFactor       string            `json:"healthFactor"`
	Collateral         map[string]string `json:"collateral"`
}

func (s *server) accountSummary(w http.ResponseWriter, r *http.Request) {
	user, ok := parseAddress(w, chi.URLParam(r, "address"))
	if !ok {
		return
	}
	value, err := s.engine.TotalCollateralValue(user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	debt, err := s.engine.MintedDebt(user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	factor, err := s.engine.AccountHealthFactor(user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	collateral := make(map[string]string)
	for _, asset := range s.engine.CollateralAssets() {
		balance, err := s.engine.CollateralBalance(user, asset)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if balance.Sign() > 0 {
			collateral[asset.Hex()] = balance.String()
		}
	}
	writeJSON(w, http.StatusOK, accountView{
		Address:            user.Hex(),
		CollateralValueUsd: value.String(),
		MintedDebt:         debt.String(),
		HealthFactor:       factor.String(),
		Collateral:         collateral,
	})
}

func (s *server) accountCollateral(w http.ResponseWriter, r *http.Request) {
	user, ok := parseAddress(w, chi.URLParam(r, "address"))
	if !ok {
		return
	}
	asset, ok := parseAddress(w, chi.URLParam(r, "asset"))
	if !ok {
		return
	}
	balance, err := s.engine.CollateralBalance(user, asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	value, err := s.engine.UsdValue(asset, balance)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":    asset.Hex(),
		"balance":  balance.String(),
		"valueUsd": value.String(),
	})
}

type overrideRequest struct {
	// Price is expressed in the feed's own decimal scale.
	Price string `json:"price"`
}

func (s *server) overrideFeed(w http.ResponseWriter, r *http.Request) {
	asset, ok := parseAddress(w, chi.URLParam(r, "asset"))
	if !ok {
		return
	}
	feed, exists := s.feeds[asset]
	if !exists {
		writeError(w, http.StatusNotFound, "no manual feed for asset")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return
	}
	var req overrideRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(req.Price), 10)
	if !ok || price.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "price must be a positive integer")
		return
	}
	feed.Set(price, time.Now())
	writeJSON(w, http.StatusOK, map[string]string{
		"asset": asset.Hex(),
		"price": price.String(),
	})
}

func parseAddress(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid address %q", raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUnregisteredAsset):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, oracle.ErrStalePrice), errors.Is(err, oracle.ErrInvalidAnswer):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

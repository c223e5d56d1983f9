/*
Package server exposes the ledger over HTTP. Callers authenticate
with a JWT bearer token whose subject is their hex address; the
middleware turns that subject into the request's signer, which is the
only identity the controllers will accept for gated operations.

Every mutating request runs against a cache wrap of the shared store
that is written on success and discarded on any error, under a single
writer lock. A handler failure can therefore never leave a half
finished operation behind.
*/
package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/orm"
	"github.com/umoja-network/umoja/x/pool"
	"github.com/umoja-network/umoja/x/remit"
	"github.com/umoja-network/umoja/x/tokenreg"
)

type signerKey struct{}

func withSigner(ctx umoja.Context, addr umoja.Address) umoja.Context {
	return context.WithValue(ctx, signerKey{}, addr)
}

// Signer returns the authenticated address of the request, or nil.
func Signer(ctx umoja.Context) umoja.Address {
	addr, _ := ctx.Value(signerKey{}).(umoja.Address)
	return addr
}

// RequestAuth authenticates whatever address the JWT middleware
// stored in the request context.
type RequestAuth struct{}

func (RequestAuth) GetConditions(umoja.Context) []umoja.Condition {
	return nil
}

func (RequestAuth) HasAddress(ctx umoja.Context, addr umoja.Address) bool {
	signer := Signer(ctx)
	return signer != nil && signer.Equals(addr)
}

// Server routes HTTP requests into the controllers.
type Server struct {
	mu     sync.Mutex
	db     umoja.CacheableKVStore
	secret []byte

	pools  pool.Controller
	remits remit.Controller
	tokens tokenreg.Controller
}

// New wires a server around the given store and controllers. The
// secret signs and verifies the JWT bearer tokens.
func New(db umoja.CacheableKVStore, secret []byte, pools pool.Controller, remits remit.Controller, tokens tokenreg.Controller) *Server {
	return &Server{
		db:     db,
		secret: secret,
		pools:  pools,
		remits: remits,
		tokens: tokens,
	}
}

// Router returns the HTTP handler with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.authenticate)

	r.Route("/pools", func(r chi.Router) {
		r.Post("/", s.createPool)
		r.Get("/{poolID}", s.getPool)
		r.Get("/{poolID}/reconcile", s.reconcilePool)
		r.Put("/{poolID}/limit", s.updateWithdrawalLimit)
		r.Put("/{poolID}/period", s.updateWithdrawalPeriod)
		r.Get("/{poolID}/members", s.getPoolMembers)
		r.Post("/{poolID}/members", s.addMember)
		r.Delete("/{poolID}/members/{address}", s.removeMember)
		r.Get("/{poolID}/contributions", s.getPoolContributions)
		r.Post("/{poolID}/contributions", s.contribute)
		r.Get("/{poolID}/withdrawals", s.getPoolWithdrawals)
		r.Post("/{poolID}/withdrawals", s.requestWithdrawal)
		r.Post("/{poolID}/withdrawals/{withdrawalID}/process", s.processWithdrawal)
	})

	r.Route("/remittances", func(r chi.Router) {
		r.Post("/", s.createRemittance)
		r.Get("/{remittanceID}", s.getRemittance)
		r.Post("/{remittanceID}/redeem", s.redeemRemittance)
		r.Post("/{remittanceID}/cancel", s.cancelRemittance)
	})
	r.Route("/remit", func(r chi.Router) {
		r.Post("/init", s.initRemit)
		r.Get("/config", s.getRemitConfig)
		r.Put("/fee", s.updateFeeBps)
		r.Put("/insurance", s.updateInsuranceBps)
		r.Get("/custody", s.custodyBalance)
	})

	r.Route("/tokens", func(r chi.Router) {
		r.Post("/", s.registerToken)
		r.Get("/convert", s.convertTokens)
		r.Get("/symbol/{symbol}", s.getTokenBySymbol)
		r.Get("/country/{country}", s.getTokensByCountry)
		r.Get("/{code}", s.getToken)
		r.Put("/{code}/rate", s.setExchangeRate)
	})

	r.Get("/users/{address}/pools", s.getUserPools)
	r.Get("/users/{address}/remittances", s.getUserRemittances)
	r.Get("/phones/{phone}/remittances", s.getPhoneRemittances)

	return r
}

// SignToken issues a bearer token for the given address, valid for
// the given duration. Exposed for clients and tests.
func (s *Server) SignToken(addr umoja.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   addr.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(s.secret)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		raw := r.Header.Get("Authorization")
		if !strings.HasPrefix(raw, prefix) {
			respondErr(w, errors.Wrap(errors.ErrUnauthorized, "missing bearer token"))
			return
		}
		token, err := jwt.Parse(strings.TrimPrefix(raw, prefix), func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.Wrapf(errors.ErrType, "unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		})
		if err != nil || !token.Valid {
			respondErr(w, errors.Wrap(errors.ErrUnauthorized, "invalid token"))
			return
		}
		sub, err := token.Claims.GetSubject()
		if err != nil {
			respondErr(w, errors.Wrap(errors.ErrUnauthorized, "missing subject"))
			return
		}
		addr, err := umoja.ParseAddress(sub)
		if err != nil {
			respondErr(w, errors.Wrap(errors.ErrUnauthorized, "malformed subject"))
			return
		}
		next.ServeHTTP(w, r.WithContext(withSigner(r.Context(), addr)))
	})
}

// update runs fn inside a cache wrap under the writer lock. The wrap
// is committed only when fn succeeds.
func (s *Server) update(r *http.Request, fn func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error)) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.db.CacheWrap()
	ctx := umoja.WithBlockTime(r.Context(), time.Now())
	res, err := fn(ctx, tx)
	if err != nil {
		tx.Discard()
		return nil, err
	}
	if err := tx.Write(); err != nil {
		return nil, errors.Wrap(err, "cannot commit")
	}
	return res, nil
}

func respond(w http.ResponseWriter, r *http.Request, res interface{}, err error) {
	if err != nil {
		respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		respondErr(w, errors.Wrap(err, "cannot encode response"))
	}
}

func respondErr(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOf(err))
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":  errors.Code(err),
		"error": err.Error(),
	})
}

// statusOf maps registered error codes to HTTP status codes.
func statusOf(err error) int {
	switch errors.Code(err) {
	case errors.ErrUnauthorized.Code():
		return http.StatusUnauthorized
	case errors.ErrForbidden.Code():
		return http.StatusForbidden
	case errors.ErrNotFound.Code():
		return http.StatusNotFound
	case errors.ErrDuplicate.Code(), errors.ErrInitialized.Code(),
		errors.ErrState.Code(), errors.ErrImmutable.Code():
		return http.StatusConflict
	case errors.ErrInput.Code(), errors.ErrAmount.Code(), errors.ErrCurrency.Code(),
		errors.ErrEmpty.Code(), errors.ErrModel.Code(), errors.ErrType.Code(),
		errors.ErrOverflow.Code(), errors.ErrExpired.Code():
		return http.StatusBadRequest
	case errors.ErrInsufficientFunds.Code(), errors.ErrLimit.Code():
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// hexID renders an entity id as a hex string, matching the format
// used in URLs.
type hexID []byte

func (id hexID) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(id))
}

func (id hexID) String() string {
	return hex.EncodeToString(id)
}

func (id *hexID) UnmarshalJSON(raw []byte) error {
	var enc string
	if err := json.Unmarshal(raw, &enc); err != nil {
		return err
	}
	dec, err := hex.DecodeString(enc)
	if err != nil {
		return errors.Wrap(errors.ErrInput, "cannot decode hex")
	}
	*id = dec
	return nil
}

type okResp struct{}

func (okResp) MarshalJSON() ([]byte, error) {
	return []byte(`{"ok":true}`), nil
}

// urlID decodes a hex entity id from the URL.
func urlID(r *http.Request, name string) ([]byte, error) {
	id, err := hex.DecodeString(chi.URLParam(r, name))
	if err != nil || len(id) != orm.IDLength {
		return nil, errors.Wrapf(errors.ErrInput, "malformed %s", name)
	}
	return id, nil
}

func urlAddress(r *http.Request, name string) (umoja.Address, error) {
	addr, err := umoja.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "malformed %s", name)
	}
	return addr, nil
}

func decodeBody(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return errors.Wrap(errors.ErrInput, "malformed request body")
	}
	return nil
}

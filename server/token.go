package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/x/tokenreg"
)

func (s *Server) registerToken(w http.ResponseWriter, r *http.Request) {
	var req tokenreg.TokenInfo
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		err := s.tokens.Register(ctx, tx, req)
		return okResp{}, err
	})
	respond(w, r, res, err)
}

func (s *Server) getToken(w http.ResponseWriter, r *http.Request) {
	res, err := s.tokens.Get(s.db, chi.URLParam(r, "code"))
	respond(w, r, res, err)
}

func (s *Server) getTokenBySymbol(w http.ResponseWriter, r *http.Request) {
	res, err := s.tokens.GetBySymbol(s.db, chi.URLParam(r, "symbol"))
	respond(w, r, res, err)
}

func (s *Server) getTokensByCountry(w http.ResponseWriter, r *http.Request) {
	res, err := s.tokens.GetByCountry(s.db, chi.URLParam(r, "country"))
	respond(w, r, map[string]interface{}{"tokens": res}, err)
}

type convertResp struct {
	Amount int64 `json:"amount"`
}

func (s *Server) convertTokens(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := strconv.ParseInt(q.Get("amount"), 10, 64)
	if err != nil {
		respondErr(w, errors.Wrap(errors.ErrInput, "malformed amount"))
		return
	}
	res, err := s.tokens.Convert(s.db, q.Get("from"), q.Get("to"), amount)
	respond(w, r, convertResp{Amount: res}, err)
}

type setRateReq struct {
	ExchangeRate int64 `json:"exchange_rate"`
}

func (s *Server) setExchangeRate(w http.ResponseWriter, r *http.Request) {
	var req setRateReq
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	code := chi.URLParam(r, "code")
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		err := s.tokens.SetExchangeRate(ctx, tx, code, req.ExchangeRate)
		return okResp{}, err
	})
	respond(w, r, res, err)
}

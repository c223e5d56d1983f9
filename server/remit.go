package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/x/remit"
)

type createRemittanceReq struct {
	Recipient      remit.Recipient `json:"recipient"`
	Amount         int64           `json:"amount"`
	SourceToken    string          `json:"source_token"`
	TargetToken    string          `json:"target_token"`
	ExchangeRate   int64           `json:"exchange_rate"`
	Insurance      bool            `json:"insurance"`
	RedemptionCode string          `json:"redemption_code"`
	Notes          string          `json:"notes,omitempty"`
}

func (s *Server) createRemittance(w http.ResponseWriter, r *http.Request) {
	var req createRemittanceReq
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		id, err := s.remits.CreateRemittance(ctx, tx, remit.CreateRemittanceParams{
			Sender:         Signer(ctx),
			Recipient:      req.Recipient,
			Amount:         req.Amount,
			SourceTicker:   req.SourceToken,
			TargetTicker:   req.TargetToken,
			ExchangeRate:   req.ExchangeRate,
			Insurance:      req.Insurance,
			RedemptionCode: []byte(req.RedemptionCode),
			Notes:          req.Notes,
		})
		if err != nil {
			return nil, err
		}
		return idResp{ID: id}, nil
	})
	respond(w, r, res, err)
}

type redeemReq struct {
	RedemptionCode string `json:"redemption_code"`
}

func (s *Server) redeemRemittance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "remittanceID")
	if err != nil {
		respondErr(w, err)
		return
	}
	var req redeemReq
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		err := s.remits.RedeemRemittance(ctx, tx, id, []byte(req.RedemptionCode), Signer(ctx))
		return okResp{}, err
	})
	respond(w, r, res, err)
}

func (s *Server) cancelRemittance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "remittanceID")
	if err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		err := s.remits.CancelRemittance(ctx, tx, id, Signer(ctx))
		return okResp{}, err
	})
	respond(w, r, res, err)
}

func (s *Server) getRemittance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "remittanceID")
	if err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.remits.GetRemittance(s.db, id)
	respond(w, r, res, err)
}

func (s *Server) getUserRemittances(w http.ResponseWriter, r *http.Request) {
	user, err := urlAddress(r, "address")
	if err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.remits.GetUserRemittances(s.db, user)
	respond(w, r, res, err)
}

func (s *Server) getPhoneRemittances(w http.ResponseWriter, r *http.Request) {
	res, err := s.remits.GetPhoneRemittances(s.db, chi.URLParam(r, "phone"))
	respond(w, r, res, err)
}

type initRemitReq struct {
	FeeBps       int64 `json:"fee_bps"`
	InsuranceBps int64 `json:"insurance_bps"`
}

// initRemit performs the one-time remittance setup. The signer of the
// first successful call becomes the remittance admin. Tokens are
// minted with the server secret, so only the operator can hand out
// the credentials to make that call.
func (s *Server) initRemit(w http.ResponseWriter, r *http.Request) {
	var req initRemitReq
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		err := s.remits.Initialize(ctx, tx, Signer(ctx), req.FeeBps, req.InsuranceBps)
		return okResp{}, err
	})
	respond(w, r, res, err)
}

func (s *Server) getRemitConfig(w http.ResponseWriter, r *http.Request) {
	res, err := s.remits.GetConfiguration(s.db)
	respond(w, r, res, err)
}

type updateBpsReq struct {
	Bps int64 `json:"bps"`
}

func (s *Server) updateFeeBps(w http.ResponseWriter, r *http.Request) {
	var req updateBpsReq
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		err := s.remits.UpdateFeeBps(ctx, tx, req.Bps)
		return okResp{}, err
	})
	respond(w, r, res, err)
}

func (s *Server) updateInsuranceBps(w http.ResponseWriter, r *http.Request) {
	var req updateBpsReq
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		err := s.remits.UpdateInsuranceBps(ctx, tx, req.Bps)
		return okResp{}, err
	})
	respond(w, r, res, err)
}

func (s *Server) custodyBalance(w http.ResponseWriter, r *http.Request) {
	res, err := s.remits.CustodyBalance(s.db)
	respond(w, r, res, err)
}

package server

import (
	"net/http"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/x/pool"
)

type createPoolReq struct {
	Name             string      `json:"name"`
	Token            string      `json:"token"`
	WithdrawalLimit  int64       `json:"withdrawal_limit"`
	WithdrawalPeriod pool.Period `json:"withdrawal_period"`
}

type idResp struct {
	ID hexID `json:"id"`
}

func (s *Server) createPool(w http.ResponseWriter, r *http.Request) {
	var req createPoolReq
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		id, err := s.pools.CreatePool(ctx, tx, Signer(ctx), req.Name, req.Token, req.WithdrawalLimit, req.WithdrawalPeriod)
		if err != nil {
			return nil, err
		}
		return idResp{ID: id}, nil
	})
	respond(w, r, res, err)
}

type addMemberReq struct {
	Address umoja.Address `json:"address"`
	Role    string        `json:"role"`
}

func parseRole(name string) (pool.Role, error) {
	switch name {
	case "admin":
		return pool.RoleAdmin, nil
	case "contributor":
		return pool.RoleContributor, nil
	case "recipient":
		return pool.RoleRecipient, nil
	}
	return pool.RoleInvalid, errors.Wrapf(errors.ErrInput, "unknown role %q", name)
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	poolID, err := urlID(r, "poolID")
	if err != nil {
		respondErr(w, err)
		return
	}
	var req addMemberReq
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	role, err := parseRole(req.Role)
	if err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		err := s.pools.AddMember(ctx, tx, poolID, Signer(ctx), req.Address, role)
		return okResp{}, err
	})
	respond(w, r, res, err)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	poolID, err := urlID(r, "poolID")
	if err != nil {
		respondErr(w, err)
		return
	}
	target, err := urlAddress(r, "address")
	if err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		err := s.pools.RemoveMember(ctx, tx, poolID, Signer(ctx), target)
		return okResp{}, err
	})
	respond(w, r, res, err)
}

type contributeReq struct {
	Amount int64 `json:"amount"`
}

func (s *Server) contribute(w http.ResponseWriter, r *http.Request) {
	poolID, err := urlID(r, "poolID")
	if err != nil {
		respondErr(w, err)
		return
	}
	var req contributeReq
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		id, err := s.pools.Contribute(ctx, tx, poolID, Signer(ctx), req.Amount)
		if err != nil {
			return nil, err
		}
		return idResp{ID: id}, nil
	})
	respond(w, r, res, err)
}

type requestWithdrawalReq struct {
	Recipient umoja.Address `json:"recipient,omitempty"`
	Amount    int64         `json:"amount"`
}

func (s *Server) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	poolID, err := urlID(r, "poolID")
	if err != nil {
		respondErr(w, err)
		return
	}
	var req requestWithdrawalReq
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		recipient := req.Recipient
		if len(recipient) == 0 {
			recipient = Signer(ctx)
		}
		id, err := s.pools.RequestWithdrawal(ctx, tx, poolID, Signer(ctx), recipient, req.Amount)
		if err != nil {
			return nil, err
		}
		return idResp{ID: id}, nil
	})
	respond(w, r, res, err)
}

type processWithdrawalReq struct {
	Approve bool `json:"approve"`
}

func (s *Server) processWithdrawal(w http.ResponseWriter, r *http.Request) {
	poolID, err := urlID(r, "poolID")
	if err != nil {
		respondErr(w, err)
		return
	}
	withdrawalID, err := urlID(r, "withdrawalID")
	if err != nil {
		respondErr(w, err)
		return
	}
	var req processWithdrawalReq
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		err := s.pools.ProcessWithdrawal(ctx, tx, poolID, withdrawalID, Signer(ctx), req.Approve)
		return okResp{}, err
	})
	respond(w, r, res, err)
}

type updateLimitReq struct {
	WithdrawalLimit int64 `json:"withdrawal_limit"`
}

func (s *Server) updateWithdrawalLimit(w http.ResponseWriter, r *http.Request) {
	poolID, err := urlID(r, "poolID")
	if err != nil {
		respondErr(w, err)
		return
	}
	var req updateLimitReq
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		err := s.pools.UpdateWithdrawalLimit(ctx, tx, poolID, Signer(ctx), req.WithdrawalLimit)
		return okResp{}, err
	})
	respond(w, r, res, err)
}

type updatePeriodReq struct {
	WithdrawalPeriod pool.Period `json:"withdrawal_period"`
}

func (s *Server) updateWithdrawalPeriod(w http.ResponseWriter, r *http.Request) {
	poolID, err := urlID(r, "poolID")
	if err != nil {
		respondErr(w, err)
		return
	}
	var req updatePeriodReq
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.update(r, func(ctx umoja.Context, tx umoja.KVStore) (interface{}, error) {
		err := s.pools.UpdateWithdrawalPeriod(ctx, tx, poolID, Signer(ctx), req.WithdrawalPeriod)
		return okResp{}, err
	})
	respond(w, r, res, err)
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	poolID, err := urlID(r, "poolID")
	if err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.pools.GetPool(s.db, poolID)
	respond(w, r, res, err)
}

func (s *Server) getPoolMembers(w http.ResponseWriter, r *http.Request) {
	poolID, err := urlID(r, "poolID")
	if err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.pools.GetPoolMembers(s.db, poolID)
	respond(w, r, res, err)
}

func (s *Server) getPoolContributions(w http.ResponseWriter, r *http.Request) {
	poolID, err := urlID(r, "poolID")
	if err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.pools.GetPoolContributions(s.db, poolID)
	respond(w, r, res, err)
}

func (s *Server) getPoolWithdrawals(w http.ResponseWriter, r *http.Request) {
	poolID, err := urlID(r, "poolID")
	if err != nil {
		respondErr(w, err)
		return
	}
	res, err := s.pools.GetPoolWithdrawals(s.db, poolID)
	respond(w, r, res, err)
}

func (s *Server) reconcilePool(w http.ResponseWriter, r *http.Request) {
	poolID, err := urlID(r, "poolID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := s.pools.Reconcile(s.db, poolID); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, r, okResp{}, nil)
}

func (s *Server) getUserPools(w http.ResponseWriter, r *http.Request) {
	user, err := urlAddress(r, "address")
	if err != nil {
		respondErr(w, err)
		return
	}
	ids, err := s.pools.GetUserPools(s.db, user)
	if err != nil {
		respondErr(w, err)
		return
	}
	out := make([]hexID, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	respond(w, r, map[string][]hexID{"pool_ids": out}, nil)
}

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"cngnlend/chain"
	"cngnlend/gate"
	"cngnlend/risk"
	"cngnlend/wad"
)

type protocolPayload struct {
	CollateralFactor     string  `json:"collateralFactor"`
	LiquidationThreshold string  `json:"liquidationThreshold"`
	ReserveFactor        string  `json:"reserveFactor"`
	CloseFactor          string  `json:"closeFactor"`
	LiquidationBonus     string  `json:"liquidationBonus"`
	EthPrice             string  `json:"ethPrice"`
	BorrowAPY            float64 `json:"borrowApy"`
	SupplyAPY            float64 `json:"supplyApy"`
	BaseRate             string  `json:"baseRate"`
	RateMultiplier       string  `json:"rateMultiplier"`
	Utilization          string  `json:"utilization"`
	TotalSupply          string  `json:"totalSupply"`
	TotalBorrows         string  `json:"totalBorrows"`
	AvailableLiquidity   string  `json:"availableLiquidity"`
	Version              uint64  `json:"version"`
}

type positionPayload struct {
	CollateralETH     string  `json:"collateralEth"`
	CollateralValue   string  `json:"collateralValue"`
	DebtBalance       string  `json:"debtBalance"`
	HealthFactor      string  `json:"healthFactor"`
	HealthBand        string  `json:"healthBand"`
	MaxBorrow         string  `json:"maxBorrow"`
	AvailableToBorrow string  `json:"availableToBorrow"`
	CurrentLTV        float64 `json:"currentLtv"`
	LiquidationPrice  string  `json:"liquidationPrice"`
	Liquidatable      bool    `json:"liquidatable"`
	Version           uint64  `json:"version"`
}

type balancesPayload struct {
	ETH           string `json:"eth"`
	CNGN          string `json:"cngn"`
	CNGNAllowance string `json:"cngnAllowance"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type evaluationPayload struct {
	Kind                  gate.Kind  `json:"kind"`
	State                 gate.State `json:"state"`
	Reason                string     `json:"reason,omitempty"`
	Tag                   chain.Tag  `json:"tag,omitempty"`
	ProjectedHealthFactor string     `json:"projectedHealthFactor,omitempty"`
	RequiredCollateral    string     `json:"requiredCollateral,omitempty"`
	CollateralShortfall   string     `json:"collateralShortfall,omitempty"`
	ApprovalAmount        string     `json:"approvalAmount,omitempty"`
	Seq                   uint64     `json:"seq"`
}

type resultPayload struct {
	Kind        gate.Kind  `json:"kind"`
	State       gate.State `json:"state"`
	TxHash      string     `json:"txHash,omitempty"`
	StepHashes  []string   `json:"stepHashes,omitempty"`
	Tag         chain.Tag  `json:"tag,omitempty"`
	RawError    string     `json:"rawError,omitempty"`
	AmountInput string     `json:"amountInput"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	if snap.Version == 0 {
		s.observe("protocol", http.StatusServiceUnavailable)
		writeError(w, http.StatusServiceUnavailable, "no protocol snapshot yet")
		return
	}
	p := snap.Params
	s.observe("protocol", http.StatusOK)
	writeJSON(w, http.StatusOK, protocolPayload{
		CollateralFactor:     wad.FormatPercent(p.CollateralFactor),
		LiquidationThreshold: wad.FormatPercent(p.LiquidationThreshold),
		ReserveFactor:        wad.FormatPercent(p.ReserveFactor),
		CloseFactor:          wad.FormatPercent(p.CloseFactor),
		LiquidationBonus:     wad.FormatPercent(p.LiquidationBonus),
		EthPrice:             wad.Format(p.EthPrice),
		BorrowAPY:            wad.RatePerSecondToAPY(p.BorrowRate),
		SupplyAPY:            wad.RatePerSecondToAPY(p.SupplyRate),
		BaseRate:             wad.FormatPercent(p.BaseRate),
		RateMultiplier:       wad.FormatPercent(p.RateMultiplier),
		Utilization:          wad.FormatPercent(p.Utilization),
		TotalSupply:          wad.Format(p.TotalSupply),
		TotalBorrows:         wad.Format(p.TotalBorrows),
		AvailableLiquidity:   wad.Format(p.AvailableLiquidity),
		Version:              snap.Version,
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	if !snap.HasUser {
		s.observe("position", http.StatusServiceUnavailable)
		writeError(w, http.StatusServiceUnavailable, "no position snapshot yet")
		return
	}
	pos := snap.Position
	s.observe("position", http.StatusOK)
	writeJSON(w, http.StatusOK, positionPayload{
		CollateralETH:     wad.Format(pos.CollateralETH),
		CollateralValue:   wad.Format(pos.CollateralValue),
		DebtBalance:       wad.Format(pos.DebtBalance),
		HealthFactor:      risk.FormatHealthFactor(pos.HealthFactor),
		HealthBand:        bandName(risk.BandFor(pos.HealthFactor)),
		MaxBorrow:         wad.Format(pos.MaxBorrow),
		AvailableToBorrow: wad.Format(pos.AvailableToBorrow),
		CurrentLTV:        pos.CurrentLTV,
		LiquidationPrice:  wad.Format(pos.LiquidationPrice),
		Liquidatable:      pos.Liquidatable,
		Version:           snap.Version,
	})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	if !snap.HasUser {
		s.observe("balances", http.StatusServiceUnavailable)
		writeError(w, http.StatusServiceUnavailable, "no balance snapshot yet")
		return
	}
	s.observe("balances", http.StatusOK)
	writeJSON(w, http.StatusOK, balancesPayload{
		ETH:           wad.Format(snap.Balances.ETH),
		CNGN:          wad.Format(snap.Balances.CNGN),
		CNGNAllowance: wad.Format(snap.Balances.CNGNAllowance),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.sync.RefreshAll(r.Context()); err != nil {
		s.observe("refresh", statusForTag(chain.Classify(err)))
		writeTaggedError(w, err)
		return
	}
	s.observe("refresh", http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]uint64{"version": s.store.Current().Version})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	kind, ok := actionKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	eval := s.gate.Evaluate(kind, req.Amount)
	s.observe("evaluate", http.StatusOK)
	writeJSON(w, http.StatusOK, toEvaluationPayload(eval))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	kind, ok := actionKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Evaluate against the freshest snapshot at submit time; the form's
	// earlier evaluation may be stale relative to a mid-session refresh.
	eval := s.gate.Evaluate(kind, req.Amount)
	if eval.State == gate.Blocked {
		s.observe("submit", http.StatusUnprocessableEntity)
		writeJSON(w, http.StatusUnprocessableEntity, toEvaluationPayload(eval))
		return
	}
	result, err := s.gate.Submit(r.Context(), eval)
	if err != nil {
		s.observe("submit", statusForTag(chain.Classify(err)))
		writeTaggedError(w, err)
		return
	}
	status := http.StatusOK
	if result.State == gate.Failed {
		status = statusForTag(result.Tag)
	}
	s.observe("submit", status)
	writeJSON(w, status, toResultPayload(result))
}

func (s *Server) handleMaxSafeWithdraw(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	if !snap.HasUser {
		writeError(w, http.StatusServiceUnavailable, "no position snapshot yet")
		return
	}
	max := risk.MaxSafeWithdraw(
		snap.Position.CollateralETH, snap.Position.DebtBalance, snap.Params, s.safetyBuffer)
	s.observe("max_safe_withdraw", http.StatusOK)
	writeJSON(w, http.StatusOK, amountRequest{Amount: wad.Format(max)})
}

func (s *Server) handleMaxBorrow(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	if !snap.HasUser {
		writeError(w, http.StatusServiceUnavailable, "no position snapshot yet")
		return
	}
	s.observe("max_borrow", http.StatusOK)
	writeJSON(w, http.StatusOK, amountRequest{Amount: wad.Format(snap.Position.AvailableToBorrow)})
}

func (s *Server) handleRepayPercentage(w http.ResponseWriter, r *http.Request) {
	pct, err := strconv.ParseInt(r.URL.Query().Get("pct"), 10, 64)
	if err != nil || pct <= 0 || pct > 100 {
		writeError(w, http.StatusBadRequest, "pct must be in 1..100")
		return
	}
	snap := s.store.Current()
	if !snap.HasUser {
		writeError(w, http.StatusServiceUnavailable, "no position snapshot yet")
		return
	}
	amount := gate.PercentageAmount(snap.Position.DebtBalance, snap.Balances.CNGN, pct)
	s.observe("repay_percentage", http.StatusOK)
	writeJSON(w, http.StatusOK, amountRequest{Amount: wad.Format(amount)})
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestBodyLimit))
	return decoder.Decode(dst)
}

func actionKind(raw string) (gate.Kind, bool) {
	switch gate.Kind(raw) {
	case gate.Deposit, gate.Withdraw, gate.Borrow, gate.Repay:
		return gate.Kind(raw), true
	default:
		return "", false
	}
}

func bandName(band risk.HealthBand) string {
	switch band {
	case risk.HealthHealthy:
		return "healthy"
	case risk.HealthWarning:
		return "warning"
	case risk.HealthDanger:
		return "danger"
	default:
		return "liquidatable"
	}
}

func toEvaluationPayload(eval gate.Evaluation) evaluationPayload {
	payload := evaluationPayload{
		Kind:   eval.Kind,
		State:  eval.State,
		Reason: eval.Reason,
		Tag:    eval.Tag,
		Seq:    eval.Seq,
	}
	if eval.ProjectedHealthFactor != nil {
		payload.ProjectedHealthFactor = risk.FormatHealthFactor(eval.ProjectedHealthFactor)
	}
	if eval.RequiredCollateral != nil {
		payload.RequiredCollateral = wad.Format(eval.RequiredCollateral)
	}
	if eval.CollateralShortfall != nil {
		payload.CollateralShortfall = wad.Format(eval.CollateralShortfall)
	}
	if eval.ApprovalAmount != nil {
		payload.ApprovalAmount = wad.Format(eval.ApprovalAmount)
	}
	return payload
}

func toResultPayload(result gate.Result) resultPayload {
	payload := resultPayload{
		Kind:        result.Kind,
		State:       result.State,
		Tag:         result.Tag,
		RawError:    result.RawError,
		AmountInput: result.AmountInput,
	}
	if (result.TxHash != common.Hash{}) {
		payload.TxHash = result.TxHash.Hex()
	}
	for _, hash := range result.StepHashes {
		payload.StepHashes = append(payload.StepHashes, hash.Hex())
	}
	return payload
}

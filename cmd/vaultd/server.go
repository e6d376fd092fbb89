package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/native/common"
	"github.com/brickvault/corechain/native/kyc"
	"github.com/brickvault/corechain/native/property"
	"github.com/brickvault/corechain/native/vault"
	"github.com/brickvault/corechain/observability"
)

// Server wires the three engines to an HTTP JSON-RPC surface, grounded on
// rpc/http.go's writeResult/writeError envelope but dispatching to this
// domain's module methods instead of chain RPC.
type Server struct {
	logger     *slog.Logger
	registry   *kyc.Registry
	vaultEng   *vault.Engine
	properties map[string]*property.Engine
}

// NewServer constructs a Server over already-initialized engines.
func NewServer(logger *slog.Logger, registry *kyc.Registry, vaultEng *vault.Engine, properties map[string]*property.Engine) *Server {
	return &Server{logger: logger, registry: registry, vaultEng: vaultEng, properties: properties}
}

func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		correlationID := uuid.New().String()
		w.Header().Set("Content-Type", "application/json")
		if r.Method != http.MethodPost {
			writeRPCError(w, http.StatusMethodNotAllowed, nil, correlationID, codeInvalidRequest, "method not allowed")
			return
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeRPCError(w, http.StatusBadRequest, nil, correlationID, codeParseError, "invalid json")
			return
		}
		module, method := moduleAndMethod(req.Method)
		result, err := s.dispatch(module, method, req.Params)
		outcome := "ok"
		statusCode := http.StatusOK
		if err != nil {
			outcome = "error"
			statusCode = http.StatusUnprocessableEntity
			writeRPCError(w, statusCode, req.ID, correlationID, codeServerError, err.Error())
		} else {
			writeRPCResult(w, req.ID, correlationID, result)
		}
		observability.ModuleMetrics().Observe(module, method, statusCode, time.Since(start))
		s.logger.Info("rpc call", "module", module, "method", method, "outcome", outcome, "correlation_id", correlationID)
		s.flushEvents(module)
	})
}

// flushEvents drains and records any domain events the dispatched module
// emitted, so the running daemon doesn't silently discard its own event
// taxonomy.
func (s *Server) flushEvents(module string) {
	var evts []*common.Event
	switch module {
	case "kyc":
		evts = s.registry.Events()
	case "vault":
		evts = s.vaultEng.Events()
	case "property":
		for _, eng := range s.properties {
			evts = append(evts, eng.Events()...)
		}
	}
	for _, evt := range evts {
		observability.Events().Record(evt)
		s.logger.Info("domain event", "type", evt.Type, "attributes", evt.Attributes)
	}
}

func moduleAndMethod(method string) (string, string) {
	trimmed := strings.TrimSpace(method)
	if trimmed == "" {
		return "", ""
	}
	idx := strings.Index(trimmed, "_")
	if idx <= 0 {
		return trimmed, ""
	}
	return trimmed[:idx], trimmed[idx+1:]
}

func (s *Server) dispatch(module, method string, params []json.RawMessage) (interface{}, error) {
	switch module {
	case "kyc":
		return s.dispatchKyc(method, params)
	case "vault":
		return s.dispatchVault(method, params)
	case "property":
		return s.dispatchProperty(method, params)
	default:
		return nil, fmt.Errorf("unknown module %q", module)
	}
}

func decodeParam(params []json.RawMessage, idx int, out interface{}) error {
	if idx >= len(params) {
		return fmt.Errorf("missing parameter %d", idx)
	}
	return json.Unmarshal(params[idx], out)
}

func decodeAddress(params []json.RawMessage, idx int) (crypto.Address, error) {
	var s string
	if err := decodeParam(params, idx, &s); err != nil {
		return crypto.Address{}, err
	}
	return crypto.DecodeAddress(s)
}

func decodeAmount(params []json.RawMessage, idx int) (*big.Int, error) {
	var s string
	if err := decodeParam(params, idx, &s); err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}

func (s *Server) dispatchKyc(method string, params []json.RawMessage) (interface{}, error) {
	switch method {
	case "isKycVerified":
		user, err := decodeAddress(params, 0)
		if err != nil {
			return nil, err
		}
		return s.registry.IsKycVerified(user)
	case "getComplianceStatus":
		user, err := decodeAddress(params, 0)
		if err != nil {
			return nil, err
		}
		status, err := s.registry.GetComplianceStatus(user)
		if err != nil {
			return nil, err
		}
		return status.String(), nil
	case "setKycStatus":
		admin, err := decodeAddress(params, 0)
		if err != nil {
			return nil, err
		}
		user, err := decodeAddress(params, 1)
		if err != nil {
			return nil, err
		}
		var verified bool
		if err := decodeParam(params, 2, &verified); err != nil {
			return nil, err
		}
		return nil, s.registry.SetKycStatus(admin, user, verified)
	case "setComplianceStatus":
		admin, err := decodeAddress(params, 0)
		if err != nil {
			return nil, err
		}
		user, err := decodeAddress(params, 1)
		if err != nil {
			return nil, err
		}
		var status uint8
		if err := decodeParam(params, 2, &status); err != nil {
			return nil, err
		}
		return nil, s.registry.SetComplianceStatus(admin, user, kyc.ComplianceStatus(status))
	default:
		return nil, fmt.Errorf("unknown kyc method %q", method)
	}
}

func (s *Server) dispatchVault(method string, params []json.RawMessage) (interface{}, error) {
	switch method {
	case "availableLiquidity":
		return s.vaultEng.AvailableLiquidity()
	case "getConfig":
		return s.vaultEng.GetConfig()
	case "getQueueStatus":
		return s.vaultEng.GetQueueStatus()
	case "fundVault":
		admin, err := decodeAddress(params, 0)
		if err != nil {
			return nil, err
		}
		amount, err := decodeAmount(params, 1)
		if err != nil {
			return nil, err
		}
		return nil, s.vaultEng.FundVault(admin, amount)
	case "withdrawLiquidity":
		admin, err := decodeAddress(params, 0)
		if err != nil {
			return nil, err
		}
		amount, err := decodeAmount(params, 1)
		if err != nil {
			return nil, err
		}
		return nil, s.vaultEng.WithdrawLiquidity(admin, amount)
	case "emergencyPause":
		admin, err := decodeAddress(params, 0)
		if err != nil {
			return nil, err
		}
		return nil, s.vaultEng.EmergencyPause(admin)
	case "emergencyUnpause":
		admin, err := decodeAddress(params, 0)
		if err != nil {
			return nil, err
		}
		return nil, s.vaultEng.EmergencyUnpause(admin)
	default:
		return nil, fmt.Errorf("unknown vault method %q", method)
	}
}

func (s *Server) dispatchProperty(method string, params []json.RawMessage) (interface{}, error) {
	var name string
	if err := decodeParam(params, 0, &name); err != nil {
		return nil, err
	}
	eng, ok := s.properties[name]
	if !ok {
		return nil, fmt.Errorf("unknown property %q", name)
	}
	switch method {
	case "getUserPosition":
		user, err := decodeAddress(params, 1)
		if err != nil {
			return nil, err
		}
		return eng.GetUserPosition(user)
	case "previewYield":
		user, err := decodeAddress(params, 1)
		if err != nil {
			return nil, err
		}
		return eng.PreviewYield(user)
	case "purchaseTokens":
		buyer, err := decodeAddress(params, 1)
		if err != nil {
			return nil, err
		}
		tokens, err := decodeAmount(params, 2)
		if err != nil {
			return nil, err
		}
		var compounding bool
		if err := decodeParam(params, 3, &compounding); err != nil {
			return nil, err
		}
		return nil, eng.PurchaseTokens(buyer, tokens, compounding)
	case "rolloverPosition":
		user, err := decodeAddress(params, 1)
		if err != nil {
			return nil, err
		}
		return nil, eng.RolloverPosition(user)
	case "liquidatePosition":
		user, err := decodeAddress(params, 1)
		if err != nil {
			return nil, err
		}
		return nil, eng.LiquidatePosition(user)
	default:
		return nil, fmt.Errorf("unknown property method %q", method)
	}
}

package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rainbow-dao/drn/logger"
	"github.com/rainbow-dao/drn/types"
)

var errNotFound = errors.New("not found")

type errorResponse struct {
	Message string `json:"message"`
}

// BridgeEndpoints registers the read only REST endpoints of the bridge node.
func BridgeEndpoints(n bridgeNode, log *slog.Logger) RegistrarFunc {
	return func(r *mux.Router) {
		r.HandleFunc("/status", getStatus(n, log)).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc("/relayers", getRelayers(n, log)).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc("/relayers/{address}", getRelayer(n, log)).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc("/locker", getLocker(n, log)).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc("/debts/{address}", getDebt(n, log)).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc("/accounts/{address}", getAccount(n, log)).Methods(http.MethodGet, http.MethodOptions)
	}
}

func getStatus(n bridgeNode, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, r, log, statusInfo(n))
	}
}

func getRelayers(n bridgeNode, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, r, log, relayersInfo(n))
	}
}

func getRelayer(n bridgeNode, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := parseAddress(r)
		if err != nil {
			writeError(w, r, log, http.StatusBadRequest, err)
			return
		}
		relayer, ok := n.Registry().Relayer(addr)
		if !ok {
			writeError(w, r, log, http.StatusNotFound, fmt.Errorf("relayer %s %w", addr, errNotFound))
			return
		}
		writeResponse(w, r, log, relayerInfo(relayer))
	}
}

func getLocker(n bridgeNode, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, r, log, lockerInfo(n))
	}
}

func getDebt(n bridgeNode, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := parseAddress(r)
		if err != nil {
			writeError(w, r, log, http.StatusBadRequest, err)
			return
		}
		writeResponse(w, r, log, map[string]any{
			"creditor": addr,
			"debt":     hexAmount(n.Locker().Debt(addr)),
		})
	}
}

func getAccount(n bridgeNode, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := parseAddress(r)
		if err != nil {
			writeError(w, r, log, http.StatusBadRequest, err)
			return
		}
		writeResponse(w, r, log, accountInfo(n, addr))
	}
}

func parseAddress(r *http.Request) (types.Address, error) {
	s := mux.Vars(r)["address"]
	if !types.IsHexAddress(s) {
		return types.Address{}, fmt.Errorf("invalid parameter \"address\": %q is not hex encoded address", s)
	}
	return types.HexToAddress(s), nil
}

func writeResponse(w http.ResponseWriter, r *http.Request, log *slog.Logger, data any) {
	w.Header().Set(headerContentType, applicationJson)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		log.WarnContext(r.Context(), "failed to encode response data as json", logger.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, code int, err error) {
	w.Header().Set(headerContentType, applicationJson)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(errorResponse{Message: err.Error()}); err != nil {
		log.WarnContext(r.Context(), "failed to encode error response as json", logger.Error(err))
	}
}

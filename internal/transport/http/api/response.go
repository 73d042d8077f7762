package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// The wire contract is a flat JSON object carrying a success flag. Errors
// always reduce to {"success": false, "error": "<mensagem>"} so clients never
// see internals.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("write json failed", "err", err)
	}
}

// Success writes a 200 with the given fields plus the success flag.
func Success(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	WriteJSON(w, http.StatusOK, body)
}

func Fail(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, errorBody{Success: false, Error: message})
}

// Common Portuguese error messages used across the API surface.
const (
	MsgTokenMissing       = "Token ausente"
	MsgTokenInvalid       = "Token inválido"
	MsgTokenExpired       = "Token expirado"
	MsgForbidden          = "Acesso negado"
	MsgAlreadyProcessed   = "Solicitação já processada"
	MsgNotFound           = "Recurso não encontrado"
	MsgInvalidRequest     = "Requisição inválida"
	MsgInternal           = "Erro interno do servidor"
	MsgPasswordUnverified = "Senha não verificada"
)

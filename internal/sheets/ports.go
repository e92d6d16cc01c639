package sheets

import (
	"context"

	"recargas/internal/core"
)

// Ports for outbound spreadsheet adapters.
type (
	// RechargeSheet mirrors recharges into a spreadsheet, one row per recharge
	// keyed by its id.
	RechargeSheet interface {
		// UpsertRecharge rewrites the row of r or appends one.
		UpsertRecharge(ctx context.Context, username string, r core.Recharge) error
		// DeleteRecharge removes the row of id. A missing row is not an error.
		DeleteRecharge(ctx context.Context, id int64) error
		// PurgeUser removes every row of userID and reports how many went.
		PurgeUser(ctx context.Context, userID int64) (int, error)
	}
)

// Header is the first row of the mirror sheet.
var Header = []string{"ID", "Usuario", "UsuarioID", "Data", "Local", "kWh", "Custo", "Odometro", "Isento", "Observacoes"}

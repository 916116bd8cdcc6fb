package storage

import "github.com/mcoot/mclink/internal/model"

// Normalize puts the indexed identity fields of rec into canonical form
func Normalize(rec *model.PlayerRecord) {
	rec.GameUsername = model.NormalizeUsername(rec.GameUsername)
	rec.GameUUID = model.NormalizeUUID(rec.GameUUID)
}

// ValidateRecord checks the fields every stored record must carry
func ValidateRecord(rec *model.PlayerRecord) error {
	switch {
	case rec.ID == "":
		return model.Validationf("player id is required")
	case rec.GuildID == "":
		return model.Validationf("guild id is required")
	case model.NormalizeUsername(rec.GameUsername) == "":
		return model.Validationf("game username is required")
	}
	if rec.Auth != nil && rec.Auth.ConfirmedAt != nil && rec.Auth.CodeShownAt == nil {
		return model.ErrCodeNotShown
	}
	return nil
}

package game

import (
	"errors"
	"fmt"
)

// IntegrityErrorCode categorizes data-integrity failures.
type IntegrityErrorCode string

const (
	// ErrCodeUnknownSpecies indicates characterId or an evolution target is not in the catalog.
	ErrCodeUnknownSpecies IntegrityErrorCode = "UNKNOWN_SPECIES"

	// ErrCodeUnknownUpgrade indicates a purchase of an upgrade the catalog does not define.
	ErrCodeUnknownUpgrade IntegrityErrorCode = "UNKNOWN_UPGRADE"

	// ErrCodeUnknownPrestigeUpgrade indicates a purchase of an undefined prestige upgrade.
	ErrCodeUnknownPrestigeUpgrade IntegrityErrorCode = "UNKNOWN_PRESTIGE_UPGRADE"

	// ErrCodeUnknownMinigame indicates a species references a minigame the catalog does not define.
	ErrCodeUnknownMinigame IntegrityErrorCode = "UNKNOWN_MINIGAME"

	// ErrCodeInvalidReward indicates a minigame reported a malformed reward.
	ErrCodeInvalidReward IntegrityErrorCode = "INVALID_REWARD"
)

// IntegrityError reports a reference to data that does not exist or a
// malformed value from a collaborator. Reducers return it together with
// the unchanged input state.
type IntegrityError struct {
	Code    IntegrityErrorCode
	Message string
	ID      string
}

func (e *IntegrityError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s (id=%s)", e.Code, e.Message, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsIntegrityError reports whether err wraps an *IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

func unknownSpecies(id string) *IntegrityError {
	return &IntegrityError{Code: ErrCodeUnknownSpecies, Message: "species not in catalog", ID: id}
}

func unknownUpgrade(id string) *IntegrityError {
	return &IntegrityError{Code: ErrCodeUnknownUpgrade, Message: "upgrade not in catalog", ID: id}
}

func unknownPrestigeUpgrade(id string) *IntegrityError {
	return &IntegrityError{Code: ErrCodeUnknownPrestigeUpgrade, Message: "prestige upgrade not in catalog", ID: id}
}

func unknownMinigame(id string) *IntegrityError {
	return &IntegrityError{Code: ErrCodeUnknownMinigame, Message: "minigame not in catalog", ID: id}
}

func invalidReward(format string, args ...any) *IntegrityError {
	return &IntegrityError{Code: ErrCodeInvalidReward, Message: fmt.Sprintf(format, args...)}
}

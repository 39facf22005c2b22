package settings

import (
	"github.com/tphakala/boxlabel/internal/logger"
)

// DeleteKind identifies the two delete entry points, each with its own
// "don't ask again" flag.
type DeleteKind int

// Delete kinds
const (
	DeleteCurrentImage DeleteKind = iota
	DeleteViaMenu
)

func (k DeleteKind) String() string {
	if k == DeleteViaMenu {
		return "menu"
	}
	return "current-image"
}

// Key returns the settings key of the kind's flag.
func (k DeleteKind) Key() string {
	if k == DeleteViaMenu {
		return "delete/menu_dont_ask"
	}
	return "delete/current_image_dont_ask"
}

// ConfirmMode is how a delete must be confirmed.
type ConfirmMode int

// Confirmation modes
const (
	// ConfirmFull is the full dialog with a "don't ask again" option.
	ConfirmFull ConfirmMode = iota
	// ConfirmLight is a lightweight yes/no prompt.
	ConfirmLight
)

func (m ConfirmMode) String() string {
	if m == ConfirmLight {
		return "light"
	}
	return "full"
}

// DeletePolicy decides the confirmation mode from flags kept in a Store.
type DeletePolicy struct {
	store *Store
}

// NewDeletePolicy returns a policy backed by store.
func NewDeletePolicy(store *Store) *DeletePolicy {
	return &DeletePolicy{store: store}
}

// Mode returns the confirmation required for kind.
func (p *DeletePolicy) Mode(kind DeleteKind) ConfirmMode {
	if p.store.Bool(kind.Key(), false) {
		return ConfirmLight
	}
	return ConfirmFull
}

// Confirm records a confirmed delete. When the full dialog was shown and
// the user ticked "don't ask again", the flag is set and saved.
func (p *DeletePolicy) Confirm(kind DeleteKind, dontAskAgain bool) error {
	if !dontAskAgain || p.Mode(kind) == ConfirmLight {
		return nil
	}
	p.store.Set(kind.Key(), true)
	GetLogger().Info("Delete confirmation disabled", logger.String("kind", kind.String()))
	return p.store.Save()
}

// ResetAll clears both flags so the full dialog is shown again.
func (p *DeletePolicy) ResetAll() error {
	p.store.Delete(DeleteCurrentImage.Key())
	p.store.Delete(DeleteViaMenu.Key())
	GetLogger().Info("Delete confirmations reset")
	return p.store.Save()
}

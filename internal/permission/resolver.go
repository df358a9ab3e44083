package permission

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/telnet2/wamux/internal/identity"
	"github.com/telnet2/wamux/internal/logging"
	"github.com/telnet2/wamux/pkg/types"
)

// Request is the input to a permission resolution.
type Request struct {
	// Session is the descriptor bound to the connection the message arrived on.
	Session     types.SessionDescriptor
	SessionName string
	Sender      string
	Chat        string
	// SelfID is the bot's own identifier, used for the bot-admin check.
	SelfID string
	// Metadata, when set, is used instead of a cache lookup.
	Metadata    *types.GroupMetadata
	BypassCache bool
}

// Resolver computes per-message permissions.
type Resolver struct {
	cache *GroupCache
	log   zerolog.Logger
}

// NewResolver creates a resolver backed by cache.
func NewResolver(cache *GroupCache) *Resolver {
	return &Resolver{
		cache: cache,
		log:   logging.Component("permission"),
	}
}

// Cache returns the resolver's group cache.
func (r *Resolver) Cache() *GroupCache {
	return r.cache
}

// Resolve computes the sender's permissions. Owner and sudo come only from
// req.Session. In groups the admin and group-owner flags come from metadata;
// when metadata cannot be fetched the direct-chat result is returned and the
// returned metadata is nil.
func (r *Resolver) Resolve(ctx context.Context, src MetadataSource, req Request) (types.PermissionResult, *types.GroupMetadata) {
	sender := identity.Canonical(req.Sender)
	number := identity.Number(sender)

	owner := number != "" && number == identity.NormalizeNumber(req.Session.OwnerNumber)
	sudo := number != "" && slices.ContainsFunc(req.Session.Sudo, func(s string) bool {
		return identity.NormalizeNumber(s) == number
	})

	res := types.PermissionResult{
		IsOwner:        owner,
		IsSudo:         sudo,
		IsSessionOwner: owner,
		IsSessionSudo:  sudo,
		IsAdminOrOwner: owner || sudo,
	}
	if !identity.IsGroup(req.Chat) {
		return res, nil
	}

	meta := req.Metadata
	if meta == nil {
		var err error
		meta, err = r.cache.Fetch(ctx, req.SessionName, req.Chat, src, req.BypassCache)
		if err != nil {
			r.log.Warn().Err(err).
				Str("session", req.SessionName).
				Str("chat", req.Chat).
				Msg("group metadata unavailable, skipping admin checks")
			return res, nil
		}
	}
	if meta == nil {
		return res, nil
	}

	participant := FindParticipant(meta, sender)
	res.Participant = participant
	res.IsAdmin = participant != nil && IsAdminParticipant(*participant)
	res.IsGroupOwner = meta.Owner != "" && sameIdentity(meta.Owner, sender)
	res.IsOwner = owner || res.IsGroupOwner
	res.IsAdminOrOwner = res.IsAdmin || res.IsOwner || sudo

	if req.SelfID != "" {
		if self := FindParticipant(meta, req.SelfID); self != nil {
			res.IsBotAdmin = IsAdminParticipant(*self)
		}
	}
	return res, meta
}

// IsAdminParticipant reports whether any of the participant's role encodings
// marks it as admin or superadmin.
func IsAdminParticipant(p types.GroupParticipant) bool {
	role := strings.ToLower(strings.TrimSpace(p.Role))
	return role == "admin" || role == "superadmin" || p.IsAdmin || p.IsSuperAdmin
}

// FindParticipant returns the participant whose id or phone number matches id.
func FindParticipant(meta *types.GroupMetadata, id string) *types.GroupParticipant {
	if meta == nil {
		return nil
	}
	for i := range meta.Participants {
		p := &meta.Participants[i]
		if sameIdentity(p.ID, id) || (p.PhoneNumber != "" && sameIdentity(p.PhoneNumber, id)) {
			return p
		}
	}
	return nil
}

// sameIdentity compares canonical identifiers, falling back to digits when
// either side carries no server part.
func sameIdentity(a, b string) bool {
	ca, cb := identity.Canonical(a), identity.Canonical(b)
	if ca == "" || cb == "" {
		return false
	}
	if ca == cb {
		return true
	}
	if identity.Server(ca) == "" || identity.Server(cb) == "" {
		return identity.SameNumber(ca, cb)
	}
	return false
}

package auth

import (
	"context"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/apperr"
)

// ErrUnauthenticated is returned by mutating operations attempted without an
// active user.
var ErrUnauthenticated = apperr.Define(apperr.ErrUnauthenticated, "no authenticated user")

// Actor is the user every mutation is attributed to.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// SessionProvider resolves the current actor. A nil actor means nobody is
// signed in.
type SessionProvider interface {
	CurrentActor(ctx context.Context) *Actor
}

// ContextSessions reads the actor placed on the request context by
// JWTMiddleware or DevAuthMiddleware.
type ContextSessions struct{}

func (ContextSessions) CurrentActor(ctx context.Context) *Actor {
	id := UserIDFromContext(ctx)
	if id == "" {
		return nil
	}
	a := &Actor{ID: id, Name: UserNameFromContext(ctx)}
	if roles := RolesFromContext(ctx); len(roles) > 0 {
		a.Role = roles[0]
	}
	return a
}

// StaticSession always reports the same actor.
type StaticSession struct {
	Actor *Actor
}

func (s StaticSession) CurrentActor(context.Context) *Actor {
	return s.Actor
}

// ContextWithActor stores a's identity on ctx.
func ContextWithActor(ctx context.Context, a *Actor) context.Context {
	if a == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, UserIDKey, a.ID)
	ctx = context.WithValue(ctx, UserNameKey, a.Name)
	if a.Role != "" {
		ctx = context.WithValue(ctx, UserRolesKey, []string{a.Role})
	}
	return ctx
}

// RequireActor returns the current actor or ErrUnauthenticated.
func RequireActor(ctx context.Context, p SessionProvider) (*Actor, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	a := p.CurrentActor(ctx)
	if a == nil || a.ID == "" {
		return nil, ErrUnauthenticated
	}
	return a, nil
}

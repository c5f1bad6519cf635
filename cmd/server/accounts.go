package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/filaprint/internal/db"
	"github.com/Simplici0/filaprint/internal/password"
	"github.com/Simplici0/filaprint/internal/user"
)

func (s *server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"fields": []string{"username", "password"}})
}

func (s *server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"fields": []string{"username", "password", "confirmPassword"}})
}

func (s *server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, invalid("form"))
		return
	}

	username := formValue(r, "username")
	plain := r.PostFormValue("password")
	if username == "" || plain == "" {
		s.writeError(w, r, missing("credentials"))
		return
	}

	u, err := user.GetByUsername(r.Context(), s.db, username)
	if errors.Is(err, user.ErrNotFound) {
		s.writeError(w, r, invalid("credentials"))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !password.Verify(plain, u.PasswordHash) {
		s.writeError(w, r, invalid("credentials"))
		return
	}

	if err := s.auth.setSessionCookie(w, u); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("user signed in", zap.Int64("user_id", u.ID))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) handleRegisterSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, invalid("form"))
		return
	}

	username := formValue(r, "username")
	plain := r.PostFormValue("password")
	confirm := r.PostFormValue("confirmPassword")
	switch {
	case username == "":
		s.writeError(w, r, missing("username"))
		return
	case len(username) < user.MinUsernameLength:
		s.writeError(w, r, invalid("username"))
		return
	}
	if err := validateNewPassword(plain, confirm, "password", "confirmPassword"); err != nil {
		s.writeError(w, r, err)
		return
	}

	hash, err := password.Hash(plain)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var created user.User
	err = db.WithTx(r.Context(), s.db, func(tx *sql.Tx) error {
		var err error
		created, err = registerUser(r.Context(), tx, username, hash, s.now())
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.auth.setSessionCookie(w, created); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("user registered", zap.Int64("user_id", created.ID), zap.String("role", string(created.Role)))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// validateNewPassword checks presence, confirmation and minimum length.
func validateNewPassword(plain, confirm, field, confirmField string) error {
	switch {
	case plain == "":
		return missing(field)
	case confirm == "":
		return missing(confirmField)
	case plain != confirm:
		return &validationError{Field: confirmField, Reason: reasonMismatch}
	case len(plain) < password.MinLength:
		return &validationError{Field: field, Reason: reasonWeak}
	}
	return nil
}

// registerUser creates a Maker account, or an Admin when no user exists yet.
func registerUser(ctx context.Context, q db.Querier, username, hash string, now time.Time) (user.User, error) {
	taken, err := user.UsernameTaken(ctx, q, username, 0)
	if err != nil {
		return user.User{}, err
	}
	if taken {
		return user.User{}, &validationError{Field: "username", Reason: reasonExists}
	}

	count, err := user.Count(ctx, q)
	if err != nil {
		return user.User{}, err
	}
	role := user.RoleMaker
	if count == 0 {
		role = user.RoleAdmin
	}
	return user.Create(ctx, q, username, hash, role, now)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *server) handleSettings(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	u, err := user.Get(r.Context(), s.db, current.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": u})
}

func (s *server) handleSettingsProfile(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, invalid("form"))
		return
	}

	profile := user.Profile{
		Username: formValue(r, "username"),
		Location: formValue(r, "location"),
	}
	if profile.Username == "" {
		s.writeError(w, r, missing("username"))
		return
	}
	if len(profile.Username) < user.MinUsernameLength {
		s.writeError(w, r, invalid("username"))
		return
	}
	rate, err := optionalFloat(formValue(r, "electricity_rate"), "electricity_rate")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	profile.ElectricityRate = user.DefaultElectricityRate
	if rate != nil {
		profile.ElectricityRate = *rate
	}

	var updated user.User
	err = db.WithTx(r.Context(), s.db, func(tx *sql.Tx) error {
		taken, err := user.UsernameTaken(r.Context(), tx, profile.Username, current.ID)
		if err != nil {
			return err
		}
		if taken {
			return &validationError{Field: "username", Reason: reasonTaken}
		}
		if err := user.UpdateProfile(r.Context(), tx, current.ID, profile); err != nil {
			return err
		}
		updated, err = user.Get(r.Context(), tx, current.ID)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// The username is part of the session, so it is re-issued.
	if err := s.auth.setSessionCookie(w, updated); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": updated})
}

func (s *server) handleSettingsPassword(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, invalid("form"))
		return
	}

	currentPassword := r.PostFormValue("currentPassword")
	if currentPassword == "" {
		s.writeError(w, r, missing("currentPassword"))
		return
	}
	plain := r.PostFormValue("newPassword")
	if err := validateNewPassword(plain, r.PostFormValue("confirmPassword"), "newPassword", "confirmPassword"); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := user.Get(r.Context(), s.db, current.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !password.Verify(currentPassword, u.PasswordHash) {
		s.writeError(w, r, invalid("currentPassword"))
		return
	}

	hash, err := password.Hash(plain)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := user.UpdatePassword(r.Context(), s.db, current.ID, hash); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("password changed", zap.Int64("user_id", current.ID))
	writeSuccess(w, http.StatusOK, nil)
}

func (s *server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := user.List(r.Context(), s.db)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"users": users})
}

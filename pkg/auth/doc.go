// Package auth manages member accounts: registration, password sign-in and
// admin review.
//
// # Overview
//
// Accounts are created in the pending state and cannot sign in until an
// admin approves them. Admins may also reject pending accounts or disable an
// approved account. Users are never deleted.
//
//	pending --approve--> approved
//	pending --reject---> rejected --approve--> approved
//
// # Usage
//
//	store := auth.NewStore(db)
//	svc := auth.NewService(store, 0) // bcrypt.DefaultCost
//
//	user, err := svc.Register(ctx, auth.RegisterInput{
//		Email:    "alice@example.com",
//		Name:     "Alice",
//		Password: "correct horse battery",
//	})
//
//	user, err = svc.Authenticate(ctx, "alice@example.com", password)
//	switch {
//	case errors.Is(err, auth.ErrInvalidCredentials): // 401
//	case errors.Is(err, auth.ErrUserNotApproved):    // 403
//	case errors.Is(err, auth.ErrUserInactive):       // 403
//	}
//
// Emails are stored lower-cased and trimmed. Unknown emails and wrong
// passwords return the same error.
//
// # Related Packages
//
//   - pkg/session: Issues the session cookie after Authenticate
//   - pkg/rbac: Roles assigned to approved accounts
//   - pkg/api: HTTP handlers for sign-in and account review
package auth

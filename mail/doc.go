// Package mail renders the identity notification messages and provides
// MailSender implementations: SMTP delivery, a slog-backed sender for local
// development and an in-memory Outbox.
//
// Every sender has the method set Send(ctx, to, subject, htmlBody) error and
// satisfies goIdentity.MailSender without importing it.
package mail

// Package delivery is the outbound transport used by dispatch workers.
//
// A Sender turns one Message into one Outcome. Senders never return errors
// or panic past Send: transport failures come back as Outcome{OK: false}
// with a human-readable detail, and every call is bounded by the driver's
// own timeout.
//
// Drivers
//
//   - "smtp": net/smtp over implicit TLS (port 465) or STARTTLS.
//   - "resend": the Resend HTTP API.
//   - "log": logs the message and reports success (dry runs).
package delivery

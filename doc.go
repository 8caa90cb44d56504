// Package auth provides authentication and session integrity primitives for
// the certification platform: bcrypt password hashing, JWT session issuance
// and renewal, single use email verification and password reset tokens, a
// context based security identity carrier, and a request gate that enforces
// maintenance mode and protected route access in a fixed order.
//
// Account review:
//   - Users carry a ValidationStatus persisted via Bun. Accounts start
//     pending and are moved to validated or rejected exactly once by an
//     admin review.
//   - AccountStateMachine centralizes the transition graph, hooks, and
//     persistence. Invoke Transition with ActorRef metadata whenever an
//     admin reviews an account.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther, the
//     token manager, the maintenance service, and the state machine to
//     describe login, verification, reset, and review events. Sinks run
//     best-effort (errors are logged) so you can forward to a database or
//     queue without blocking authentication.
//
// Claims decoration:
//   - ClaimsDecorator is invoked before JWTs are signed. Decorators may
//     enrich extension metadata while identity claims (sub, iss, aud, exp,
//     uid, email, utype) remain immutable and are re-checked after every
//     decorator run.
package auth

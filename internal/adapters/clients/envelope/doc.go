// Package envelope normalises barrage-fly responses on a clients.Client.
//
// Every backend reply is wrapped as {"code": 200, "data": ..., "msg": "..."}.
// The Normaliser registers three interceptors:
//
//   - a request pass-through,
//   - a success handler that unwraps data for code 200 (or no code) and turns any
//     other code into a *domain.ApplicationError whose Error() is the display message,
//   - a failure handler that leaves transport errors untouched.
//
// In the client execution context both failure paths also show the message
// through a ports.Notifier. In the server context nothing is shown.
package envelope

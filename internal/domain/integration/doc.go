// Package integration contains the channel integration bounded context.
// This context describes how normalized connector calls are exchanged with
// the remote commerce platform (catalog, CRM, order, pricing and availability APIs).
//
// Key concepts:
//   - Call: the normalized invocation arguments (ncUtil, channelProfile, flowContext, payload)
//   - ChannelProfile: typed view of the channel settings, auth values and business reference specs
//   - Envelope: the normalized {ncStatusCode, response, payload} answer handed to the callback
//   - RemoteClient: port for the bearer-authenticated remote REST API
//   - StatusPolicy: mapping from remote HTTP statuses onto envelope statuses
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration

// Package api is the REST client for the chat platform's HTTP API.
//
// # Overview
//
// Every endpoint answers with the same envelope:
//
//	{"code": 0, "message": "", "data": {...}}
//
// A non-zero code is returned as *Error. Data is decoded into the typed result
// of the call.
//
// # Calls used by the gateway
//
//   - GatewayURL: GET /api/v3/gateway/index?compress=0|1
//   - Me: GET /api/v3/user/me, called once at startup for the bot identity
//
// # Other calls
//
// UserView, CreateMessage, CreateDirectMessage, Guilds, GuildView,
// GuildMembers, SetNickname, LeaveGuild and Offline. List calls walk every
// page (page_size 50) until meta.page reaches meta.page_total.
//
// # Authentication
//
// Requests carry "Authorization: Bot <token>" or "Authorization: Bearer
// <token>" depending on the Token kind.
package api

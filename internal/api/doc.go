// Package api реализует HTTP API сервера рассылок.
//
// Маршруты версионированы префиксом /api/v1. Ответы заворачиваются в
// конверт {"data": ...} или {"error": {"code": ..., "message": ...}}.
// События сессий instances стримятся по WebSocket.
package api

package main

// General API documentation for swaggo. Run `swag init -g cmd/zmapd/docs.go` to regenerate docs.
//
// @title           zmapd API
// @version         1.0
// @description     HTTP and XML remote control API for the ZMap view manager.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http

package main

// General API documentation for swaggo. Regenerate with `swag init`.
//
// @title           scribed API
// @version         1.0
// @description     HTTP API for local speech-to-text and transcript correction.
//
// @contact.name   scribed maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http

package main

// General API documentation for swaggo. Run `swag init -g cmd/lorad/docs.go` to generate docs.
//
// @title           lorad API
// @version         1.0
// @description     LoRA model session manager: load base models with optional adapters and stream generations from an Ollama-compatible inference service.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http

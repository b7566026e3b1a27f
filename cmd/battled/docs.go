package main

//go:generate swag init -g cmd/battled/main.go -o docs

// @title           Meme Wars Battle API
// @version         0.1.0
// @description     Token battles: stake escrow, yield forwarding, oracle settlement and payouts.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization

package fakebackend

import "net/http"

const rpcPrefix = "/rpc/"

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("POST "+rpcPrefix+RouteLogin, ChainMiddleware(s.loginHandler, s.APIMiddleware(s.Instrument(RouteLogin))...))
	s.RegisterRouteFunc("POST "+rpcPrefix+RouteRefresh, ChainMiddleware(s.refreshHandler, s.APIMiddleware(s.Instrument(RouteRefresh))...))
	s.RegisterRouteFunc("POST "+rpcPrefix+RouteLogout, ChainMiddleware(s.logoutHandler, s.APIMiddleware(s.Instrument(RouteLogout), s.RequireAuth())...))
	s.RegisterRouteFunc("POST "+rpcPrefix+RouteMe, ChainMiddleware(s.meHandler, s.APIMiddleware(s.Instrument(RouteMe), s.RequireAuth())...))
	s.RegisterRouteFunc("POST "+rpcPrefix+RouteSwitchHolding, ChainMiddleware(s.switchHoldingHandler, s.APIMiddleware(s.Instrument(RouteSwitchHolding), s.RequireAuth())...))

	s.RegisterRouteFunc("GET /"+RouteDevices, ChainMiddleware(s.listDevicesHandler, s.APIMiddleware(s.Instrument(RouteDevices), s.RequireAuth())...))
	s.RegisterRouteFunc("POST /"+RouteDevices, ChainMiddleware(s.createDeviceHandler, s.APIMiddleware(s.Instrument(RouteDevices), s.RequireAuth())...))

	s.RegisterRouteFunc("/", ChainMiddleware(s.notFoundHandler, s.APIMiddleware()...))
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeNativeError(w, http.StatusNotFound, "PGRST202", "Could not find the function or relation "+r.URL.Path, "", "")
}

// Package messaging provides a lifecycle-aware push messaging service.
//
// A Service exposes a lifecycle.Registry that follows the create, start,
// rebind and destroy hooks driven by its host, so work started for a push
// event can be tied to the service's lifetime:
//
//	svc := messaging.NewService()
//	svc.OnNewToken(func(token string) {
//		svc.Lifecycle().Launch(func(ctx context.Context) error {
//			return backend.RegisterToken(ctx, token)
//		})
//	})
//	svc.OnMessageReceived(func(msg messaging.RemoteMessage) { ... })
//	err := messaging.Run(ctx, svc, messaging.NewHubSource(hubURL))
//
// Run hosts a Service on a push Source. HubSource is a Source that receives
// messages from a SignalR hub.
package messaging

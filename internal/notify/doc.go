// Package notify fans events out to household members.
//
// Every event goes to the recipients' live connections synchronously. An
// event carrying an Alert also schedules one email batch and one chat
// webhook post on a Dispatcher. The two off-band channels run
// independently; their failures are logged and never reach the caller.
//
// Usage:
//
//	d := notify.NewDispatcher(cfg.Notifications.Workers, cfg.Notifications.QueueSize, cfg.GetNotifyTimeout())
//	f := notify.NewFanout(registry, d)
//	f.SetWebhook(poster, cfg.Notifications.Webhook.Title)
//	f.Notify(ctx, recipients, payload, &notify.Alert{Message: msg})
//	defer d.Close(shutdownCtx)
package notify

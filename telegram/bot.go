package telegram

import (
	"csms/internal"
	"csms/models"
	"csms/utility"
	"fmt"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"log"
	"strings"
)

// TgBot notifies subscribed telegram chats about charging activity. It
// implements internal.EventHandler; events are fanned out from a channel
// so protocol handlers never block on the bot api.
type TgBot struct {
	api           *tgbotapi.BotAPI
	database      internal.Database
	subscriptions map[int]models.UserSubscription
	event         chan MessageContent
	send          chan MessageContent
}

type MessageContent struct {
	ChatID int64
	Text   string
}

func NewBot(apiKey string) (*TgBot, error) {
	tgBot := &TgBot{
		subscriptions: make(map[int]models.UserSubscription),
		event:         make(chan MessageContent, 100),
		send:          make(chan MessageContent, 100),
	}
	api, err := tgbotapi.NewBotAPI(apiKey)
	if err != nil {
		return nil, err
	}
	tgBot.api = api
	return tgBot, nil
}

func (b *TgBot) SetDatabase(database internal.Database) {
	b.database = database
}

func (b *TgBot) Start() {
	if b.database != nil {
		subscriptions, err := b.database.GetSubscriptions()
		if err != nil {
			log.Printf("bot: error getting subscriptions: %v", err)
		} else {
			for _, subscription := range subscriptions {
				b.subscriptions[subscription.UserID] = subscription
			}
		}
	}
	go b.sendPump()
	go b.eventPump()
	go b.updatesPump()
}

func (b *TgBot) updatesPump() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		log.Printf("bot: error getting updates: %v", err)
		return
	}
	for update := range updates {
		if update.Message == nil {
			continue
		}
		if !update.Message.IsCommand() {
			continue
		}
		switch update.Message.Command() {
		case "start":
			subscription := models.UserSubscription{
				UserID:   update.Message.From.ID,
				Username: update.Message.From.UserName,
				ChatID:   update.Message.Chat.ID,
			}
			b.subscriptions[subscription.UserID] = subscription
			if b.database != nil {
				if err := b.database.AddSubscription(&subscription); err != nil {
					log.Printf("bot: error adding subscription: %v", err)
				}
			}
			b.send <- MessageContent{ChatID: update.Message.Chat.ID, Text: fmt.Sprintf("Hello *%v*, you are now subscribed to charging updates", sanitize(subscription.Username))}
		case "stop":
			delete(b.subscriptions, update.Message.From.ID)
			if b.database != nil {
				if err := b.database.DeleteSubscription(&models.UserSubscription{UserID: update.Message.From.ID}); err != nil {
					log.Printf("bot: error deleting subscription: %v", err)
				}
			}
			b.send <- MessageContent{ChatID: update.Message.Chat.ID, Text: "Your subscription has been removed"}
		case "status":
			b.send <- MessageContent{ChatID: update.Message.Chat.ID, Text: b.composeStatusMessage()}
		}
	}
}

// eventPump fans one event out to every subscribed chat
func (b *TgBot) eventPump() {
	for event := range b.event {
		for _, subscription := range b.subscriptions {
			b.sendMessage(subscription.ChatID, event.Text)
		}
	}
}

func (b *TgBot) sendPump() {
	for event := range b.send {
		b.sendMessage(event.ChatID, event.Text)
	}
}

func (b *TgBot) sendMessage(id int64, text string) {
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "MarkdownV2"
	_, err := b.api.Send(msg)
	if err != nil {
		// the markdown may be what failed, retry as plain text
		msg = tgbotapi.NewMessage(id, fmt.Sprintf("Error: %v", err))
		_, err = b.api.Send(msg)
		if err != nil {
			log.Printf("bot: error sending message: %v", err)
		}
	}
}

func (b *TgBot) OnStatusNotification(event *internal.EventMessage) {
	if event.ConnectorId == 0 {
		// connector updates only, charger-wide statuses are too chatty
		return
	}
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", event.ChargePointId, event.ConnectorId, event.Status)
	if event.Info != "" {
		msg += fmt.Sprintf("%v\n", sanitize(event.Info))
	}
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) OnTransactionStart(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: Connector %v\n", event.ChargePointId, event.ConnectorId)
	msg += fmt.Sprintf("Transaction ID: %v START\n", event.TransactionId)
	msg += fmt.Sprintf("User: %v\n", sanitize(event.Username))
	msg += fmt.Sprintf("ID Tag: %v\n", sanitize(event.IdTag))
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) OnTransactionStop(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: Connector %v\n", event.ChargePointId, event.ConnectorId)
	msg += fmt.Sprintf("Transaction ID: %v STOP\n", event.TransactionId)
	msg += fmt.Sprintf("User: %v\n", sanitize(event.Username))
	msg += fmt.Sprintf("ID Tag: %v\n", sanitize(event.IdTag))
	msg += fmt.Sprintf("Info: %v\n", sanitize(event.Info))
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) OnAuthorize(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: id tag: `%v`\n", event.ChargePointId, event.IdTag)
	msg += fmt.Sprintf("Auth status: %v\n", event.Status)
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) composeStatusMessage() string {
	msg := "Status info:\n\n"
	if b.database != nil {
		chargePoints, err := b.database.GetChargePoints()
		if err != nil {
			log.Printf("bot: error getting charge points: %v", err)
			msg += fmt.Sprintf("Error getting charge points:\n `%v`", err)
		} else {
			for _, cp := range chargePoints {
				msg += fmt.Sprintf("*%v*: `%v`\n", cp.Id, cp.Status)
				if !cp.LastSeen.IsZero() {
					msg += fmt.Sprintf("seen %v\n", sanitize(utility.TimeAgo(cp.LastSeen)))
				}
				msg += "\n"
			}
		}
	}
	msg += fmt.Sprintf("Active subscriptions: %v", len(b.subscriptions))
	return msg
}

// sanitize escapes the characters reserved by telegram MarkdownV2
func sanitize(input string) string {
	reservedChars := "\\`*_{}[]()#+-.!|"
	sanitized := ""
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized += "\\" + string(char)
		} else {
			sanitized += string(char)
		}
	}
	return sanitized
}

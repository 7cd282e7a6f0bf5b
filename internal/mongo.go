package internal

import (
	"context"
	"csms/internal/config"
	"csms/models"
	"fmt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"log"
	"time"
)

const (
	collectionLog           = "sys_log"
	collectionUserTags      = "user_tags"
	collectionChargePoints  = "charge_points"
	collectionTransactions  = "transactions"
	collectionSessions      = "charging_sessions"
	collectionMeterSamples  = "meter_samples"
	collectionTariffs       = "tariffs"
	collectionSubscriptions = "subscriptions"
)

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
	return client, nil
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	err := connection.Disconnect(m.ctx)
	if err != nil {
		log.Println("mongodb disconnect error;", err)
	}
}

func (m *MongoDB) WriteLogMessage(data Data) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionLog)
	_, err = collection.InsertOne(m.ctx, data)
	return err
}

func (m *MongoDB) GetChargePoints() ([]models.ChargePoint, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var chargePoints []models.ChargePoint
	collection := connection.Database(m.database).Collection(collectionChargePoints)
	cursor, err := collection.Find(m.ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &chargePoints); err != nil {
		return nil, err
	}
	return chargePoints, nil
}

func (m *MongoDB) GetChargePoint(id string) (*models.ChargePoint, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "charge_point_id", Value: id}}
	collection := connection.Database(m.database).Collection(collectionChargePoints)
	var chargePoint models.ChargePoint
	err = collection.FindOne(m.ctx, filter).Decode(&chargePoint)
	if err != nil {
		return nil, err
	}
	return &chargePoint, nil
}

func (m *MongoDB) UpdateChargePoint(chargePoint *models.ChargePoint) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "charge_point_id", Value: chargePoint.Id}}
	update := bson.M{"$set": chargePoint}
	collection := connection.Database(m.database).Collection(collectionChargePoints)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) SetChargePointOnline(id string, online bool) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "charge_point_id", Value: id}}
	update := bson.M{"$set": bson.M{"is_online": online, "last_seen": time.Now().UTC()}}
	collection := connection.Database(m.database).Collection(collectionChargePoints)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) SetChargePointConnection(id, address, network string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "charge_point_id", Value: id}}
	update := bson.M{"$set": bson.M{"address": address, "network": network}}
	collection := connection.Database(m.database).Collection(collectionChargePoints)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) GetUserTag(id string) (*models.UserTag, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "id_tag", Value: id}}
	collection := connection.Database(m.database).Collection(collectionUserTags)
	var userTag models.UserTag
	err = collection.FindOne(m.ctx, filter).Decode(&userTag)
	if err != nil {
		return nil, err
	}
	return &userTag, nil
}

func (m *MongoDB) AddTransaction(transaction *models.Transaction) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	_, err = collection.InsertOne(m.ctx, transaction)
	return err
}

func (m *MongoDB) UpdateTransaction(transaction *models.Transaction) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "transaction_id", Value: transaction.Id}}
	update := bson.M{"$set": transaction}
	collection := connection.Database(m.database).Collection(collectionTransactions)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) GetTransaction(id int) (*models.Transaction, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "transaction_id", Value: id}}
	collection := connection.Database(m.database).Collection(collectionTransactions)
	var transaction models.Transaction
	err = collection.FindOne(m.ctx, filter).Decode(&transaction)
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (m *MongoDB) GetLastTransaction() (*models.Transaction, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	opts := options.FindOne().SetSort(bson.D{{Key: "transaction_id", Value: -1}})
	var transaction models.Transaction
	err = collection.FindOne(m.ctx, bson.D{}, opts).Decode(&transaction)
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (m *MongoDB) GetActiveTransaction(chargePointId string) (*models.Transaction, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "charge_point_id", Value: chargePointId}, {Key: "is_finished", Value: false}}
	collection := connection.Database(m.database).Collection(collectionTransactions)
	opts := options.FindOne().SetSort(bson.D{{Key: "transaction_id", Value: -1}})
	var transaction models.Transaction
	err = collection.FindOne(m.ctx, filter, opts).Decode(&transaction)
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (m *MongoDB) AddChargingSession(session *models.ChargingSession) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSessions)
	_, err = collection.InsertOne(m.ctx, session)
	return err
}

func (m *MongoDB) UpdateChargingSession(session *models.ChargingSession) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "session_id", Value: session.Id}}
	update := bson.M{"$set": session}
	collection := connection.Database(m.database).Collection(collectionSessions)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) GetOpenChargingSession(chargePointId string) (*models.ChargingSession, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "charge_point_id", Value: chargePointId}, {Key: "is_finished", Value: false}}
	collection := connection.Database(m.database).Collection(collectionSessions)
	opts := options.FindOne().SetSort(bson.D{{Key: "time_start", Value: -1}})
	var session models.ChargingSession
	err = collection.FindOne(m.ctx, filter, opts).Decode(&session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (m *MongoDB) AddMeterSample(sample *models.MeterSample) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionMeterSamples)
	_, err = collection.InsertOne(m.ctx, sample)
	return err
}

// GetTariff resolves the applicable price for a (charge point, user) pair,
// falling back to the charge point wide tariff when no user-specific one
// is configured.
func (m *MongoDB) GetTariff(chargePointId, userId string) (*models.Tariff, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTariffs)
	var tariff models.Tariff
	filter := bson.D{{Key: "charge_point_id", Value: chargePointId}, {Key: "user_id", Value: userId}}
	err = collection.FindOne(m.ctx, filter).Decode(&tariff)
	if err == nil {
		return &tariff, nil
	}
	filter = bson.D{{Key: "charge_point_id", Value: chargePointId}, {Key: "user_id", Value: ""}}
	err = collection.FindOne(m.ctx, filter).Decode(&tariff)
	if err != nil {
		return nil, err
	}
	return &tariff, nil
}

func (m *MongoDB) GetSubscriptions() ([]models.UserSubscription, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSubscriptions)
	cursor, err := collection.Find(m.ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	var subscriptions []models.UserSubscription
	if err = cursor.All(m.ctx, &subscriptions); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (m *MongoDB) AddSubscription(subscription *models.UserSubscription) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSubscriptions)
	filter := bson.D{{Key: "user_id", Value: subscription.UserID}}
	_, _ = collection.DeleteMany(m.ctx, filter)
	_, err = collection.InsertOne(m.ctx, subscription)
	return err
}

func (m *MongoDB) DeleteSubscription(subscription *models.UserSubscription) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSubscriptions)
	filter := bson.D{{Key: "user_id", Value: subscription.UserID}}
	_, err = collection.DeleteMany(m.ctx, filter)
	return err
}
